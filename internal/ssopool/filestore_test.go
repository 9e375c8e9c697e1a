package ssopool

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	if err := store.Init(ctx, []string{"aaa", "bbb"}, now); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if err := store.IncrUsage(ctx, "aaa", now); err != nil {
		t.Fatalf("incr failed: %v", err)
	}
	if err := store.IncrUsage(ctx, "aaa", now.Add(time.Minute)); err != nil {
		t.Fatalf("incr failed: %v", err)
	}
	if err := store.SetFailed(ctx, "bbb", true); err != nil {
		t.Fatalf("set failed failed: %v", err)
	}
	if err := store.SetAgeVerified(ctx, "aaa", true); err != nil {
		t.Fatalf("set age verified failed: %v", err)
	}

	// Reabrir desde disco y verificar cada campo
	reopened, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	states, err := reopened.States(ctx, []string{"aaa", "bbb"})
	if err != nil {
		t.Fatalf("states failed: %v", err)
	}

	a := states["aaa"]
	if a.Count != 2 {
		t.Errorf("count = %d, want 2", a.Count)
	}
	if !a.LastUsed.Equal(now.Add(time.Minute)) {
		t.Errorf("last used = %v, want %v", a.LastUsed, now.Add(time.Minute))
	}
	if !a.FirstUsed.Equal(now) {
		t.Errorf("first used = %v, want %v", a.FirstUsed, now)
	}
	if !a.AgeVerified {
		t.Error("age verified flag lost")
	}
	if !states["bbb"].Failed {
		t.Error("failed flag lost")
	}

	t.Log("✅ File state survives reopen")
}

func TestFileStore_InitDoesNotOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	ctx := context.Background()
	now := time.Now()

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := store.Init(ctx, []string{"aaa"}, now); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if err := store.IncrUsage(ctx, "aaa", now); err != nil {
		t.Fatalf("incr failed: %v", err)
	}

	// Una segunda inicialización es perezosa: no pisa el contador
	if err := store.Init(ctx, []string{"aaa", "bbb"}, now.Add(time.Hour)); err != nil {
		t.Fatalf("second init failed: %v", err)
	}

	states, err := store.States(ctx, []string{"aaa", "bbb"})
	if err != nil {
		t.Fatalf("states failed: %v", err)
	}
	if states["aaa"].Count != 1 {
		t.Errorf("count = %d after re-init, want 1", states["aaa"].Count)
	}
	if states["bbb"].Count != 0 {
		t.Errorf("new entry count = %d, want 0", states["bbb"].Count)
	}
}

func TestFileStore_TryDailyReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := store.Init(ctx, []string{"aaa"}, base); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	// Primera llamada: sólo sella el instante inicial
	applied, err := store.TryDailyReset(ctx, []string{"aaa"}, base, ResetInterval)
	if err != nil {
		t.Fatalf("try reset failed: %v", err)
	}
	if applied {
		t.Error("first check applied a reset, want stamp only")
	}

	if err := store.IncrUsage(ctx, "aaa", base); err != nil {
		t.Fatalf("incr failed: %v", err)
	}

	// Dentro de la ventana: nada
	applied, err = store.TryDailyReset(ctx, []string{"aaa"}, base.Add(23*time.Hour), ResetInterval)
	if err != nil {
		t.Fatalf("try reset failed: %v", err)
	}
	if applied {
		t.Error("reset applied before the window elapsed")
	}

	// Vencida la ventana: exactamente un reset
	applied, err = store.TryDailyReset(ctx, []string{"aaa"}, base.Add(24*time.Hour), ResetInterval)
	if err != nil {
		t.Fatalf("try reset failed: %v", err)
	}
	if !applied {
		t.Error("reset not applied after the window elapsed")
	}

	states, err := store.States(ctx, []string{"aaa"})
	if err != nil {
		t.Fatalf("states failed: %v", err)
	}
	if states["aaa"].Count != 0 {
		t.Errorf("count = %d after reset, want 0", states["aaa"].Count)
	}

	last, err := store.LastReset(ctx)
	if err != nil {
		t.Fatalf("last reset failed: %v", err)
	}
	if !last.Equal(base.Add(24 * time.Hour)) {
		t.Errorf("last reset = %v, want %v", last, base.Add(24*time.Hour))
	}
}

func TestFileStore_NextIndexAdvances(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	ctx := context.Background()

	for want := int64(1); want <= 5; want++ {
		got, err := store.NextIndex(ctx)
		if err != nil {
			t.Fatalf("next index failed: %v", err)
		}
		if got != want {
			t.Errorf("NextIndex() = %d, want %d", got, want)
		}
	}
}

func TestFileStore_CorruptFileStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("failed to write corrupt file: %v", err)
	}

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("corrupt state file should not be fatal: %v", err)
	}

	states, err := store.States(context.Background(), []string{"aaa"})
	if err != nil {
		t.Fatalf("states failed: %v", err)
	}
	if states["aaa"].Count != 0 {
		t.Errorf("count = %d from fresh store, want 0", states["aaa"].Count)
	}
}
