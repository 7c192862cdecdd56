package store_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"quantumharmony.io/vault/store"
	"quantumharmony.io/vault/store/testkit"
)

func newFileStore(t *testing.T) store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keystores.json")
	fs, err := store.NewFileStore(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	return fs
}

func TestFileStore_Conformance(t *testing.T) {
	testkit.RunStoreConformance(t, newFileStore)
}

func TestFileStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keystores.json")

	first, err := store.NewFileStore(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	if err := first.Save(testkit.TestRecord("a")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := first.Save(testkit.TestRecord("b")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := first.SetActive("b"); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	second, err := store.NewFileStore(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	recs, err := second.List()
	if err != nil {
		t.Fatalf("List after reopen: %v", err)
	}
	if len(recs) != 2 || recs[0].ID != "a" || recs[1].ID != "b" {
		t.Fatalf("records did not survive reopen: %+v", recs)
	}
	active, err := second.Active()
	if err != nil || active.ID != "b" {
		t.Fatalf("active pointer did not survive reopen: %v %q", err, active.ID)
	}
}

func TestFileStore_HeldLockBlocksWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keystores.json")
	fs, err := store.NewFileStore(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	// Simulate another process holding the writer lock.
	if err := os.WriteFile(path+".lock", nil, 0o600); err != nil {
		t.Fatalf("plant lockfile: %v", err)
	}
	if err := fs.Save(testkit.TestRecord("a")); !errors.Is(err, store.ErrLocked) {
		t.Fatalf("Save with held lock: got %v want ErrLocked", err)
	}

	// Releasing the lock unblocks mutations.
	if err := os.Remove(path + ".lock"); err != nil {
		t.Fatalf("remove lockfile: %v", err)
	}
	if err := fs.Save(testkit.TestRecord("a")); err != nil {
		t.Fatalf("Save after releasing lock: %v", err)
	}
}

func TestFileStore_RejectsCorruptedCollection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keystores.json")
	fs, err := store.NewFileStore(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	if err := fs.Save(testkit.TestRecord("a")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := os.WriteFile(path, []byte("not json"), 0o600); err != nil {
		t.Fatalf("corrupt collection: %v", err)
	}
	if _, err := fs.List(); err == nil {
		t.Fatalf("List accepted a corrupted collection document")
	}
}
