// Package store persists keystore record collections across process
// restarts.
//
// A collection is an ordered set of records, unique by id, with a single
// active pointer designating the default signing identity. Two backends
// implement the same contract: a JSON file store and a bolt-backed store.
package store

import (
	"errors"

	"quantumharmony.io/vault/keystore"
)

var (
	ErrNotFound = errors.New("store: record not found")
	ErrNoActive = errors.New("store: no active record")
	ErrLocked   = errors.New("store: collection is locked by another writer")
)

// Store is CRUD over a persisted keystore collection.
//
// Contract:
//   - Save upserts by record id. The first record saved into an empty
//     collection becomes active.
//   - List returns records in insertion order.
//   - Delete of the active record reassigns the active pointer to the first
//     remaining record, or clears it when the collection becomes empty.
//   - Records are never re-encrypted in place; rotation saves a new record.
//   - Get and Active return ErrNotFound / ErrNoActive when absent.
type Store interface {
	Save(rec keystore.Record) error
	Get(id string) (keystore.Record, error)
	List() ([]keystore.Record, error)
	Active() (keystore.Record, error)
	SetActive(id string) error
	Delete(id string) error
	Close() error
}
