// Package testkit provides a backend-agnostic conformance suite for
// keystore record stores.
package testkit

import (
	"errors"
	"fmt"
	"testing"

	"quantumharmony.io/vault/keystore"
	"quantumharmony.io/vault/store"
)

// NewStore constructs a fresh, empty Store instance for a test.
// The returned Store MUST be isolated from other tests.
type NewStore func(t *testing.T) store.Store

// TestRecord fabricates a structurally plausible record for store tests.
// Store backends treat cipher material as opaque.
func TestRecord(id string) keystore.Record {
	return keystore.Record{
		Version:   keystore.FormatVersion,
		ID:        id,
		Address:   "addr-" + id,
		PublicKey: "0x" + fmt.Sprintf("%0128x", 0),
		Crypto: keystore.Crypto{
			Cipher:       keystore.CipherNameGCM,
			Ciphertext:   "0x00",
			CipherParams: keystore.CipherParams{IV: "0x000000000000000000000000"},
			KDF:          keystore.KDFNamePbkdf2,
			KDFParams: keystore.KDFParams{
				Iterations: keystore.DefaultIterations,
				Salt:       "0x00",
				Hash:       keystore.KDFHash,
			},
		},
		Meta: keystore.Meta{Name: "test-" + id, Created: "2026-01-01T00:00:00Z", Algorithm: keystore.Algorithm},
	}
}

// RunStoreConformance exercises the Store contract against a backend.
func RunStoreConformance(t *testing.T, newStore NewStore) {
	t.Helper()

	t.Run("FirstSaveBecomesActive", func(t *testing.T) {
		s := newStore(t)
		rec := TestRecord("a")
		if err := s.Save(rec); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		active, err := s.Active()
		if err != nil {
			t.Fatalf("Active failed: %v", err)
		}
		if active.ID != rec.ID {
			t.Fatalf("active after first save: got %q want %q", active.ID, rec.ID)
		}
	})

	t.Run("EmptyCollection", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Active(); !errors.Is(err, store.ErrNoActive) {
			t.Fatalf("Active on empty store: got %v want ErrNoActive", err)
		}
		if _, err := s.Get("nope"); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("Get missing: got %v want ErrNotFound", err)
		}
		recs, err := s.List()
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(recs) != 0 {
			t.Fatalf("List on empty store returned %d records", len(recs))
		}
	})

	t.Run("ListPreservesInsertionOrder", func(t *testing.T) {
		s := newStore(t)
		for _, id := range []string{"c", "a", "b"} {
			if err := s.Save(TestRecord(id)); err != nil {
				t.Fatalf("Save %q failed: %v", id, err)
			}
		}
		recs, err := s.List()
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		want := []string{"c", "a", "b"}
		if len(recs) != len(want) {
			t.Fatalf("List returned %d records, want %d", len(recs), len(want))
		}
		for i, id := range want {
			if recs[i].ID != id {
				t.Fatalf("List[%d] = %q, want %q", i, recs[i].ID, id)
			}
		}
	})

	t.Run("UpsertReplacesWithoutReordering", func(t *testing.T) {
		s := newStore(t)
		_ = s.Save(TestRecord("a"))
		_ = s.Save(TestRecord("b"))

		updated := TestRecord("a")
		updated.Meta.Name = "renamed"
		if err := s.Save(updated); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
		recs, err := s.List()
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(recs) != 2 {
			t.Fatalf("upsert duplicated the record: %d records", len(recs))
		}
		if recs[0].ID != "a" || recs[0].Meta.Name != "renamed" {
			t.Fatalf("upsert did not replace in place: %+v", recs[0])
		}
		active, err := s.Active()
		if err != nil || active.ID != "a" {
			t.Fatalf("upsert moved the active pointer: %v %q", err, active.ID)
		}
	})

	t.Run("SetActive", func(t *testing.T) {
		s := newStore(t)
		_ = s.Save(TestRecord("a"))
		_ = s.Save(TestRecord("b"))
		if err := s.SetActive("b"); err != nil {
			t.Fatalf("SetActive failed: %v", err)
		}
		active, err := s.Active()
		if err != nil || active.ID != "b" {
			t.Fatalf("active after SetActive: %v %q", err, active.ID)
		}
		if err := s.SetActive("missing"); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("SetActive missing: got %v want ErrNotFound", err)
		}
	})

	t.Run("DeleteActiveReassigns", func(t *testing.T) {
		s := newStore(t)
		_ = s.Save(TestRecord("a"))
		_ = s.Save(TestRecord("b"))
		if err := s.Delete("a"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		active, err := s.Active()
		if err != nil {
			t.Fatalf("Active after deleting active record: %v", err)
		}
		if active.ID != "b" {
			t.Fatalf("active reassigned to %q, want %q", active.ID, "b")
		}
	})

	t.Run("DeleteNonActiveKeepsActive", func(t *testing.T) {
		s := newStore(t)
		_ = s.Save(TestRecord("a"))
		_ = s.Save(TestRecord("b"))
		if err := s.Delete("b"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		active, err := s.Active()
		if err != nil || active.ID != "a" {
			t.Fatalf("active after deleting non-active: %v %q", err, active.ID)
		}
	})

	t.Run("DeleteLastClearsActive", func(t *testing.T) {
		s := newStore(t)
		_ = s.Save(TestRecord("a"))
		if err := s.Delete("a"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := s.Active(); !errors.Is(err, store.ErrNoActive) {
			t.Fatalf("Active after deleting last record: got %v want ErrNoActive", err)
		}
		if err := s.Delete("a"); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("Delete missing: got %v want ErrNotFound", err)
		}

		// The collection must come back to life on the next save.
		if err := s.Save(TestRecord("b")); err != nil {
			t.Fatalf("Save after emptying: %v", err)
		}
		active, err := s.Active()
		if err != nil || active.ID != "b" {
			t.Fatalf("active after repopulating: %v %q", err, active.ID)
		}
	})
}
