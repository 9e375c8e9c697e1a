package storage

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestMediaStore_SaveExtensionByStage(t *testing.T) {
	store, err := NewMediaStore(t.TempDir(), "http://127.0.0.1:9563")
	if err != nil {
		t.Fatalf("failed to create media store: %v", err)
	}

	payload := base64.StdEncoding.EncodeToString([]byte("fake image bytes"))

	tests := []struct {
		name    string
		id      string
		final   bool
		wantURL string
	}{
		{"final gets jpg", "aaaa-1111", true, "http://127.0.0.1:9563/images/aaaa-1111.jpg"},
		{"intermediate gets png", "bbbb-2222", false, "http://127.0.0.1:9563/images/bbbb-2222.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url, err := store.Save(tt.id, payload, tt.final)
			if err != nil {
				t.Fatalf("save failed: %v", err)
			}
			if url != tt.wantURL {
				t.Errorf("url = %q, want %q", url, tt.wantURL)
			}
		})
	}

	data, err := os.ReadFile(filepath.Join(store.Dir(), "aaaa-1111.jpg"))
	if err != nil {
		t.Fatalf("failed to read saved file: %v", err)
	}
	if string(data) != "fake image bytes" {
		t.Errorf("saved bytes = %q, want decoded payload", data)
	}
}

func TestMediaStore_SaveRejectsBadPayload(t *testing.T) {
	store, err := NewMediaStore(t.TempDir(), "http://localhost")
	if err != nil {
		t.Fatalf("failed to create media store: %v", err)
	}

	if _, err := store.Save("cccc-3333", "not base64 !!!", true); err == nil {
		t.Error("expected error for invalid base64 payload")
	}
}

func TestMediaStore_ListNewestFirst(t *testing.T) {
	dir := t.TempDir()
	store, err := NewMediaStore(dir, "http://localhost")
	if err != nil {
		t.Fatalf("failed to create media store: %v", err)
	}

	old := filepath.Join(dir, "old.jpg")
	recent := filepath.Join(dir, "recent.png")
	ignored := filepath.Join(dir, "notes.txt")
	for _, f := range []string{old, recent, ignored} {
		if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", f, err)
		}
	}
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatalf("failed to age file: %v", err)
	}

	images, err := store.List(0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(images) != 2 {
		t.Fatalf("listed %d images, want 2 (txt must be skipped)", len(images))
	}
	if images[0].Filename != "recent.png" {
		t.Errorf("first image = %q, want newest", images[0].Filename)
	}

	limited, err := store.List(1)
	if err != nil {
		t.Fatalf("limited list failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limited list returned %d images, want 1", len(limited))
	}
}

func TestMediaStore_Clear(t *testing.T) {
	dir := t.TempDir()
	store, err := NewMediaStore(dir, "http://localhost")
	if err != nil {
		t.Fatalf("failed to create media store: %v", err)
	}

	for _, name := range []string{"a.jpg", "b.png"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}

	deleted, err := store.Clear()
	if err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted %d files, want 2", deleted)
	}

	images, err := store.List(0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(images) != 0 {
		t.Errorf("%d images remain after clear, want 0", len(images))
	}
}
