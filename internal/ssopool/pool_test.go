package ssopool

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/elsanchez/imagine-gateway/internal/domain"
)

// newTestPool escribe un archivo de credenciales y construye un Manager
// sobre un FileStore temporal
func newTestPool(t *testing.T, tokens []string, strategy domain.RotationStrategy, limit int) *Manager {
	t.Helper()

	dir := t.TempDir()
	keyFile := filepath.Join(dir, "key.txt")

	content := ""
	for _, tok := range tokens {
		content += tok + "\n"
	}
	if err := os.WriteFile(keyFile, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write key file: %v", err)
	}

	store, err := NewFileStore(filepath.Join(dir, "sso_state.json"))
	if err != nil {
		t.Fatalf("failed to create file store: %v", err)
	}

	return NewManager(store, Options{
		Source:     keyFile,
		Strategy:   strategy,
		DailyLimit: limit,
	})
}

func TestManager_LoadSkipsCommentsAndBlanks(t *testing.T) {
	dir := t.TempDir()
	keyFile := filepath.Join(dir, "key.txt")
	content := "# credenciales de prueba\ntoken-a\n\n  \ntoken-b\n# otra\ntoken-c\n"
	if err := os.WriteFile(keyFile, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write key file: %v", err)
	}

	store, err := NewFileStore(filepath.Join(dir, "state.json"))
	if err != nil {
		t.Fatalf("failed to create file store: %v", err)
	}
	m := NewManager(store, Options{Source: keyFile, DailyLimit: 10})

	n, err := m.Load(context.Background())
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if n != 3 {
		t.Errorf("loaded %d credentials, want 3", n)
	}
}

func TestManager_RoundRobinQuotaExhaustion(t *testing.T) {
	// Tres credenciales con límite diario 2: seis selecciones visitan cada
	// una exactamente dos veces; la séptima no encuentra ninguna
	m := newTestPool(t, []string{"tok-a", "tok-b", "tok-c"}, domain.StrategyRoundRobin, 2)
	ctx := context.Background()

	if _, err := m.Load(ctx); err != nil {
		t.Fatalf("failed to load: %v", err)
	}

	seen := make(map[string]int)
	for i := 0; i < 6; i++ {
		c, err := m.NextCredential(ctx)
		if err != nil {
			t.Fatalf("selection %d failed: %v", i+1, err)
		}
		seen[c.Token]++
		if err := m.RecordUsage(ctx, c.Token); err != nil {
			t.Fatalf("record usage failed: %v", err)
		}
	}

	for _, tok := range []string{"tok-a", "tok-b", "tok-c"} {
		if seen[tok] != 2 {
			t.Errorf("credential %q selected %d times, want 2", tok, seen[tok])
		}
	}

	_, err := m.NextCredential(ctx)
	if !errors.Is(err, domain.ErrNoCredentialAvailable) {
		t.Errorf("seventh selection returned %v, want ErrNoCredentialAvailable", err)
	}

	t.Log("✅ Round robin respects the daily quota")
}

func TestManager_RecordUsageMonotonic(t *testing.T) {
	m := newTestPool(t, []string{"tok-a"}, domain.StrategyLeastUsed, 10)
	ctx := context.Background()

	if _, err := m.Load(ctx); err != nil {
		t.Fatalf("failed to load: %v", err)
	}

	last := 0
	for i := 0; i < 5; i++ {
		if err := m.RecordUsage(ctx, "tok-a"); err != nil {
			t.Fatalf("record usage failed: %v", err)
		}
		st, err := m.Status(ctx)
		if err != nil {
			t.Fatalf("status failed: %v", err)
		}
		if got := st.Credentials[0].UsageCount; got < last {
			t.Errorf("usage count decreased from %d to %d", last, got)
		} else {
			last = got
		}
	}
	if last != 5 {
		t.Errorf("usage count = %d after 5 records, want 5", last)
	}

	// Sólo el reset puede bajar el contador
	if err := m.ResetDailyUsage(ctx); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	st, err := m.Status(ctx)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if got := st.Credentials[0].UsageCount; got != 0 {
		t.Errorf("usage count = %d after reset, want 0", got)
	}
}

func TestManager_DailyResetIdempotent(t *testing.T) {
	m := newTestPool(t, []string{"tok-a", "tok-b"}, domain.StrategyLeastUsed, 10)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	m.now = func() time.Time { return now }

	if _, err := m.Load(ctx); err != nil {
		t.Fatalf("failed to load: %v", err)
	}

	// Primera selección: sella el inicio de la ventana, sin resetear
	if _, err := m.NextCredential(ctx); err != nil {
		t.Fatalf("first selection failed: %v", err)
	}
	if err := m.RecordUsage(ctx, "tok-a"); err != nil {
		t.Fatalf("record usage failed: %v", err)
	}
	if err := m.MarkFailed(ctx, "tok-b", "prueba"); err != nil {
		t.Fatalf("mark failed failed: %v", err)
	}

	// Pasada la ventana, la primera selección aplica el reset
	now = base.Add(25 * time.Hour)
	if _, err := m.NextCredential(ctx); err != nil {
		t.Fatalf("post-boundary selection failed: %v", err)
	}

	st, err := m.Status(ctx)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if got := st.Credentials[0].UsageCount; got != 0 {
		t.Errorf("usage after reset = %d, want 0", got)
	}
	if st.Failed != 0 {
		t.Errorf("failed count after reset = %d, want 0", st.Failed)
	}
	firstReset := st.LastReset

	// Una segunda comprobación dentro de la misma ventana no vuelve a
	// resetear: el uso registrado entre medias sobrevive
	if err := m.RecordUsage(ctx, "tok-a"); err != nil {
		t.Fatalf("record usage failed: %v", err)
	}
	now = now.Add(time.Minute)
	if _, err := m.NextCredential(ctx); err != nil {
		t.Fatalf("second post-boundary selection failed: %v", err)
	}

	st, err = m.Status(ctx)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if got := st.Credentials[0].UsageCount; got != 1 {
		t.Errorf("usage after second check = %d, want 1 (reset ran twice)", got)
	}
	if !st.LastReset.Equal(firstReset) {
		t.Errorf("last reset moved from %v to %v within the same window", firstReset, st.LastReset)
	}

	t.Log("✅ Daily reset fires once per window")
}

func TestManager_ExhaustionRecovery_AllFailed(t *testing.T) {
	m := newTestPool(t, []string{"tok-a", "tok-b"}, domain.StrategyHybrid, 10)
	ctx := context.Background()

	if _, err := m.Load(ctx); err != nil {
		t.Fatalf("failed to load: %v", err)
	}

	if err := m.MarkFailed(ctx, "tok-a", "unauthorized"); err != nil {
		t.Fatalf("mark failed failed: %v", err)
	}
	if err := m.MarkFailed(ctx, "tok-b", "unauthorized"); err != nil {
		t.Fatalf("mark failed failed: %v", err)
	}

	// Todas fallidas: la selección limpia los flags y entrega la primera
	c, err := m.NextCredential(ctx)
	if err != nil {
		t.Fatalf("recovery selection failed: %v", err)
	}
	if c.Token != "tok-a" {
		t.Errorf("recovery returned %q, want %q", c.Token, "tok-a")
	}

	st, err := m.Status(ctx)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if st.Failed != 0 {
		t.Errorf("failed count after recovery = %d, want 0", st.Failed)
	}

	t.Log("✅ Recovery clears failed flags when every credential failed")
}

func TestManager_ExhaustionRecovery_QuotaExhausted(t *testing.T) {
	m := newTestPool(t, []string{"tok-a", "tok-b"}, domain.StrategyHybrid, 1)
	ctx := context.Background()

	if _, err := m.Load(ctx); err != nil {
		t.Fatalf("failed to load: %v", err)
	}

	if err := m.RecordUsage(ctx, "tok-a"); err != nil {
		t.Fatalf("record usage failed: %v", err)
	}
	if err := m.RecordUsage(ctx, "tok-b"); err != nil {
		t.Fatalf("record usage failed: %v", err)
	}

	// Cuota agotada de verdad: no hay recuperación posible
	_, err := m.NextCredential(ctx)
	if !errors.Is(err, domain.ErrNoCredentialAvailable) {
		t.Errorf("selection returned %v, want ErrNoCredentialAvailable", err)
	}
}

func TestManager_MarkSuccessClearsFailure(t *testing.T) {
	m := newTestPool(t, []string{"tok-a"}, domain.StrategyHybrid, 10)
	ctx := context.Background()

	if _, err := m.Load(ctx); err != nil {
		t.Fatalf("failed to load: %v", err)
	}

	if err := m.MarkFailed(ctx, "tok-a", "blocked"); err != nil {
		t.Fatalf("mark failed failed: %v", err)
	}
	if err := m.MarkSuccess(ctx, "tok-a"); err != nil {
		t.Fatalf("mark success failed: %v", err)
	}

	c, err := m.NextCredential(ctx)
	if err != nil {
		t.Fatalf("selection failed: %v", err)
	}
	if c.Token != "tok-a" {
		t.Errorf("selected %q, want %q", c.Token, "tok-a")
	}
}

func TestManager_AgeVerifiedRoundTrip(t *testing.T) {
	m := newTestPool(t, []string{"tok-a"}, domain.StrategyHybrid, 10)
	ctx := context.Background()

	if _, err := m.Load(ctx); err != nil {
		t.Fatalf("failed to load: %v", err)
	}

	verified, err := m.AgeVerified(ctx, "tok-a")
	if err != nil {
		t.Fatalf("age verified failed: %v", err)
	}
	if verified {
		t.Error("new credential reported as age verified")
	}

	if err := m.SetAgeVerified(ctx, "tok-a", true); err != nil {
		t.Fatalf("set age verified failed: %v", err)
	}

	verified, err = m.AgeVerified(ctx, "tok-a")
	if err != nil {
		t.Fatalf("age verified failed: %v", err)
	}
	if !verified {
		t.Error("age verified flag did not persist")
	}
}

func TestManager_ReloadKeepsSurvivorCounters(t *testing.T) {
	dir := t.TempDir()
	keyFile := filepath.Join(dir, "key.txt")
	if err := os.WriteFile(keyFile, []byte("tok-a\n"), 0o644); err != nil {
		t.Fatalf("failed to write key file: %v", err)
	}

	store, err := NewFileStore(filepath.Join(dir, "state.json"))
	if err != nil {
		t.Fatalf("failed to create file store: %v", err)
	}
	m := NewManager(store, Options{Source: keyFile, Strategy: domain.StrategyLeastUsed, DailyLimit: 10})
	ctx := context.Background()

	if _, err := m.Load(ctx); err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if err := m.RecordUsage(ctx, "tok-a"); err != nil {
		t.Fatalf("record usage failed: %v", err)
	}

	// Se añade una credencial nueva al archivo y se recarga
	if err := os.WriteFile(keyFile, []byte("tok-a\ntok-b\n"), 0o644); err != nil {
		t.Fatalf("failed to rewrite key file: %v", err)
	}
	n, err := m.Reload(ctx)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if n != 2 {
		t.Errorf("reload loaded %d credentials, want 2", n)
	}

	st, err := m.Status(ctx)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	for _, cs := range st.Credentials {
		switch cs.Key {
		case domain.KeyHash("tok-a"):
			if cs.UsageCount != 1 {
				t.Errorf("survivor usage = %d after reload, want 1", cs.UsageCount)
			}
		case domain.KeyHash("tok-b"):
			if cs.UsageCount != 0 {
				t.Errorf("new credential usage = %d, want 0", cs.UsageCount)
			}
		}
	}

	t.Log("✅ Reload keeps persisted usage for surviving credentials")
}

func TestManager_StatusTotals(t *testing.T) {
	m := newTestPool(t, []string{"tok-a", "tok-b", "tok-c"}, domain.StrategyHybrid, 1)
	ctx := context.Background()

	if _, err := m.Load(ctx); err != nil {
		t.Fatalf("failed to load: %v", err)
	}

	if err := m.MarkFailed(ctx, "tok-a", "unauthorized"); err != nil {
		t.Fatalf("mark failed failed: %v", err)
	}
	if err := m.RecordUsage(ctx, "tok-b"); err != nil {
		t.Fatalf("record usage failed: %v", err)
	}

	st, err := m.Status(ctx)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}

	if st.Total != 3 {
		t.Errorf("total = %d, want 3", st.Total)
	}
	if st.Failed != 1 {
		t.Errorf("failed = %d, want 1", st.Failed)
	}
	if st.Exhausted != 1 {
		t.Errorf("exhausted = %d, want 1", st.Exhausted)
	}
	if st.Available != 1 {
		t.Errorf("available = %d, want 1", st.Available)
	}
	if st.Strategy != domain.StrategyHybrid {
		t.Errorf("strategy = %q, want %q", st.Strategy, domain.StrategyHybrid)
	}
}
