package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStorePut(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}

	data := []byte("artifact bytes")
	key, err := store.Put(context.Background(), "artifacts/job-1/payload.mp3", data, "audio/mpeg")
	if err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if key != "artifacts/job-1/payload.mp3" {
		t.Fatalf("key = %q", key)
	}

	written, err := os.ReadFile(filepath.Join(store.BasePath(), "artifacts", "job-1", "payload.mp3"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !bytes.Equal(written, data) {
		t.Fatal("written bytes mismatch")
	}
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	if _, err := store.Put(context.Background(), "../escape.bin", []byte("x"), ""); err == nil {
		t.Fatal("expected traversal key to be rejected")
	}
}

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		want    string
		wantErr bool
	}{
		{"plain", "a/b/c.bin", "a/b/c.bin", false},
		{"leading slash stripped", "/a/b.bin", "a/b.bin", false},
		{"dot slash stripped", "./a.bin", "a.bin", false},
		{"backslashes normalized", `a\b\c.bin`, "a/b/c.bin", false},
		{"empty", "", "", true},
		{"traversal", "../../etc/passwd", "", true},
		{"dot only", ".", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := sanitizeKey(tc.key)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("sanitizeKey(%q) expected error", tc.key)
				}
				return
			}
			if err != nil {
				t.Fatalf("sanitizeKey(%q) error: %v", tc.key, err)
			}
			if got != tc.want {
				t.Fatalf("sanitizeKey(%q) = %q, want %q", tc.key, got, tc.want)
			}
		})
	}
}
