package ssoimport

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMergeIntoFile_AppendsOnlyNewTokens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.txt")
	initial := "# credentials\ntoken-a\n\ntoken-b\n"
	if err := os.WriteFile(path, []byte(initial), 0o600); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	added, err := MergeIntoFile(path, []string{"token-b", "token-c", "token-a", "token-d"})
	if err != nil {
		t.Fatalf("MergeIntoFile: %v", err)
	}
	if added != 2 {
		t.Fatalf("added = %d, want 2", added)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	content := string(data)

	if !strings.HasPrefix(content, initial) {
		t.Errorf("existing content was rewritten:\n%s", content)
	}
	if !strings.Contains(content, "token-c\n") || !strings.Contains(content, "token-d\n") {
		t.Errorf("new tokens missing:\n%s", content)
	}
	if strings.Count(content, "token-a") != 1 || strings.Count(content, "token-b") != 1 {
		t.Errorf("duplicate tokens appended:\n%s", content)
	}
}

func TestMergeIntoFile_CreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.txt")

	added, err := MergeIntoFile(path, []string{"token-a", "token-a", "  "})
	if err != nil {
		t.Fatalf("MergeIntoFile: %v", err)
	}
	if added != 1 {
		t.Fatalf("added = %d, want 1", added)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "token-a\n" {
		t.Errorf("content = %q", string(data))
	}
}

func TestMergeIntoFile_InsertsSeparatorWithoutTrailingNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.txt")
	if err := os.WriteFile(path, []byte("token-a"), 0o600); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	if _, err := MergeIntoFile(path, []string{"token-b"}); err != nil {
		t.Fatalf("MergeIntoFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "token-a\ntoken-b\n" {
		t.Errorf("content = %q", string(data))
	}
}

func TestMergeIntoFile_NothingNewLeavesFileUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.txt")
	if err := os.WriteFile(path, []byte("token-a\n"), 0o600); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	before, _ := os.Stat(path)

	added, err := MergeIntoFile(path, []string{"token-a"})
	if err != nil {
		t.Fatalf("MergeIntoFile: %v", err)
	}
	if added != 0 {
		t.Fatalf("added = %d, want 0", added)
	}

	after, _ := os.Stat(path)
	if before.Size() != after.Size() {
		t.Errorf("file size changed from %d to %d", before.Size(), after.Size())
	}

	t.Log("✅ idempotent merge leaves the credential file alone")
}
