package storage

import (
	"context"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	return store
}

func TestNewFileStoreRequiresBasePath(t *testing.T) {
	if _, err := NewFileStore("  "); err == nil {
		t.Fatal("NewFileStore() accepted empty base path")
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	key, err := store.Write(ctx, "uploads/doc.pdf", []byte("%PDF-1.4 test"))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if key != "uploads/doc.pdf" {
		t.Fatalf("key = %q, want uploads/doc.pdf", key)
	}

	got, err := store.Read(key)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(got) != "%PDF-1.4 test" {
		t.Fatalf("Read() = %q", got)
	}

	size, err := store.Stat(key)
	if err != nil || size != int64(len("%PDF-1.4 test")) {
		t.Fatalf("Stat() = %d, %v", size, err)
	}
	if !store.Exists(key) {
		t.Fatal("Exists() = false for stored key")
	}
}

func TestWriteFromCreatesNestedDirectories(t *testing.T) {
	store := newTestStore(t)

	key, err := store.WriteFrom(context.Background(), "outputs/task-1/mono.pdf", strings.NewReader("data"))
	if err != nil {
		t.Fatalf("WriteFrom() error = %v", err)
	}
	full, err := store.Resolve(key)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if want := filepath.Join(store.BasePath(), "outputs", "task-1", "mono.pdf"); full != want {
		t.Fatalf("Resolve() = %q, want %q", full, want)
	}
}

func TestSanitizeKeyRejectsTraversal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, key := range []string{"", "   ", "../escape.txt", "uploads/../../etc/passwd", "."} {
		if _, err := store.Write(ctx, key, []byte("x")); err == nil {
			t.Fatalf("Write(%q) accepted an unsafe key", key)
		}
	}

	// Leading slashes and dot segments are normalized, not rejected.
	key, err := store.Write(ctx, "/uploads/./a.pdf", []byte("x"))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if key != "uploads/a.pdf" {
		t.Fatalf("normalized key = %q, want uploads/a.pdf", key)
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	key, _ := store.Write(ctx, "uploads/gone.pdf", []byte("x"))
	if err := store.Remove(key); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if store.Exists(key) {
		t.Fatal("Exists() = true after Remove")
	}
	if err := store.Remove(key); err != nil {
		t.Fatalf("Remove() of absent key error = %v", err)
	}
}

func TestRemoveAllDeletesSubtree(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.Write(ctx, "outputs/t1/mono.pdf", []byte("a"))
	store.Write(ctx, "outputs/t1/dual.pdf", []byte("b"))
	if err := store.RemoveAll("outputs/t1"); err != nil {
		t.Fatalf("RemoveAll() error = %v", err)
	}
	if store.Exists("outputs/t1/mono.pdf") || store.Exists("outputs/t1/dual.pdf") {
		t.Fatal("subtree survived RemoveAll")
	}
}

func TestListFiltersByExtension(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.Write(ctx, "uploads/a.pdf", []byte("a"))
	store.Write(ctx, "uploads/b.PDF", []byte("b"))
	store.Write(ctx, "uploads/notes.txt", []byte("c"))
	store.Write(ctx, "outputs/t1/mono.pdf", []byte("d"))

	keys, err := store.List(UploadsPrefix, ".pdf")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	sort.Strings(keys)
	want := []string{"uploads/a.pdf", "uploads/b.PDF"}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("List() = %v, want %v", keys, want)
	}

	all, err := store.List(UploadsPrefix, "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("List(all) = %v, want 3 keys", all)
	}
}

func TestListMissingPrefixIsEmpty(t *testing.T) {
	store := newTestStore(t)
	keys, err := store.List("outputs/nope", "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("List() = %v, want empty", keys)
	}
}
