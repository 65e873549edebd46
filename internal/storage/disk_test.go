package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDiskBlobStore_PutGetDelete(t *testing.T) {
	root := filepath.Join(t.TempDir(), "blobs")
	store, err := NewDiskBlobStore(root)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	key := BlobKey("p1", "f1")

	if err := store.Put(ctx, key, []byte("hello")); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, key, []byte("hello again")); err != nil {
		t.Fatal(err)
	}
	got, err := store.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello again" {
		t.Errorf("Get: got %q", got)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "p1")); !os.IsNotExist(err) {
		t.Error("empty project directory should be removed")
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Errorf("deleting a missing key: %v", err)
	}
}

func TestDiskBlobStore_rejectsEscapingKeys(t *testing.T) {
	store, err := NewDiskBlobStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"", ".", "../outside", "/etc/passwd", "a/../../b"} {
		if err := store.Put(context.Background(), key, []byte("x")); err == nil {
			t.Errorf("Put(%q) should fail", key)
		}
	}
}

func TestDiskUsageBytes(t *testing.T) {
	dir := t.TempDir()

	f1 := filepath.Join(dir, "f1.txt")
	if err := os.WriteFile(f1, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := DiskUsageBytes(f1)
	if err != nil {
		t.Fatal(err)
	}
	if got != 5 {
		t.Errorf("single file: got %d bytes, want 5", got)
	}

	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "a"), []byte("ab"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err = DiskUsageBytes(dir, filepath.Join(dir, "missing"), "")
	if err != nil {
		t.Fatal(err)
	}
	if got != 7 {
		t.Errorf("directory: got %d bytes, want 7", got)
	}
}
