package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/elsanchez/imagine-gateway/internal/domain"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()

	db, err := NewDatabase(filepath.Join(t.TempDir(), "gateway.db"))
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDatabase_MigrationsApplied(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "gateway.db")

	db, err := NewDatabase(dbPath)
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Fatal("database file was not created")
	}

	var count int
	err = db.DB.GetContext(context.Background(), &count,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='generations'")
	if err != nil {
		t.Fatalf("failed to query tables: %v", err)
	}
	if count != 1 {
		t.Error("generations table was not created")
	}

	t.Log("✅ Migrations applied successfully")
}

func TestHistory_RecordAndRecent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	rec := &domain.GenerationRecord{
		Prompt:        "a beautiful sunset over the ocean",
		AspectRatio:   "2:3",
		Requested:     4,
		Produced:      4,
		Status:        domain.GenerationCompleted,
		URLs:          []string{"http://localhost/images/a.jpg", "http://localhost/images/b.jpg"},
		CredentialKey: "abcdef123456",
		Duration:      42 * time.Second,
	}

	id, err := db.HistoryRepo.Record(ctx, rec)
	if err != nil {
		t.Fatalf("failed to record generation: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero id")
	}

	records, err := db.HistoryRepo.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("failed to list history: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}

	got := records[0]
	if got.Prompt != rec.Prompt {
		t.Errorf("prompt = %q, want %q", got.Prompt, rec.Prompt)
	}
	if got.Status != domain.GenerationCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
	if len(got.URLs) != 2 {
		t.Errorf("urls = %v, want 2 entries", got.URLs)
	}
	if got.Duration != 42*time.Second {
		t.Errorf("duration = %v, want 42s", got.Duration)
	}
	if got.CredentialKey != "abcdef123456" {
		t.Errorf("credential key = %q, want abcdef123456", got.CredentialKey)
	}
}

func TestHistory_RecentOrderAndLimit(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := db.HistoryRepo.Record(ctx, &domain.GenerationRecord{
			Prompt:    "prompt",
			Status:    domain.GenerationCompleted,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("failed to record generation %d: %v", i, err)
		}
	}

	records, err := db.HistoryRepo.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("failed to list history: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if !records[0].CreatedAt.After(records[1].CreatedAt) {
		t.Errorf("records not in newest-first order: %v then %v",
			records[0].CreatedAt, records[1].CreatedAt)
	}
}

func TestHistory_Counts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	entries := []domain.GenerationStatus{
		domain.GenerationCompleted,
		domain.GenerationCompleted,
		domain.GenerationFailed,
	}
	for _, status := range entries {
		rec := &domain.GenerationRecord{Prompt: "p", Status: status}
		if status == domain.GenerationFailed {
			rec.ErrorCode = "blocked"
		}
		if _, err := db.HistoryRepo.Record(ctx, rec); err != nil {
			t.Fatalf("failed to record: %v", err)
		}
	}

	total, err := db.HistoryRepo.CountTotal(ctx)
	if err != nil {
		t.Fatalf("count total failed: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}

	failed, err := db.HistoryRepo.CountByStatus(ctx, domain.GenerationFailed)
	if err != nil {
		t.Fatalf("count by status failed: %v", err)
	}
	if failed != 1 {
		t.Errorf("failed count = %d, want 1", failed)
	}
}
