package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewLocalStore(dir, "/uploads")
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	key := "images/42/0190c5a4-7e7b-7000-8000-000000000000_max.webp"
	url, err := store.Put(ctx, key, []byte("first"), "image/webp", CacheControlImmutable)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if url != "/uploads/"+key {
		t.Errorf("unexpected url %q", url)
	}

	// overwrite keeps one file with the newest content
	if _, err := store.Put(ctx, key, []byte("second"), "image/webp", CacheControlImmutable); err != nil {
		t.Fatalf("second Put failed: %v", err)
	}

	blob, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(blob.Data) != "second" {
		t.Errorf("expected overwritten content, got %q", blob.Data)
	}
	if blob.ContentType != "image/webp" || blob.CacheControl != CacheControlImmutable {
		t.Errorf("unexpected blob headers %q %q", blob.ContentType, blob.CacheControl)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "images", "42"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected no temp files left behind, found %d entries", len(entries))
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("second Delete should be a no-op, got %v", err)
	}
	if _, err := store.Get(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLocalStoreRejectsEscapingKeys(t *testing.T) {
	t.Parallel()

	store, err := NewLocalStore(t.TempDir(), "/uploads")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	for _, key := range []string{"", "../etc/passwd", "/abs/key", "a//b", `a\b`, "images/./x"} {
		if _, err := store.Put(context.Background(), key, []byte("x"), "text/plain", ""); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Put(%q): expected ErrInvalidKey, got %v", key, err)
		}
	}
}

func TestPublicURLEscapesSegments(t *testing.T) {
	t.Parallel()

	got := publicURL("https://cdn.example.com/media/", "12_0_my photo.jpg")
	if want := "https://cdn.example.com/media/12_0_my%20photo.jpg"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
