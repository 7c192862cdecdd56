package store

import (
	"fmt"

	"quantumharmony.io/vault/keystore"
)

// collectionVersion is the on-disk collection document version.
const collectionVersion = 1

// Collection is the in-memory form of a persisted keystore collection.
// Methods maintain the ordering and active-pointer invariants; persistence
// is the backend's concern.
type Collection struct {
	Version  int               `json:"version"`
	ActiveID string            `json:"activeId"`
	Records  []keystore.Record `json:"records"`
}

// NewCollection returns an empty collection.
func NewCollection() *Collection {
	return &Collection{Version: collectionVersion}
}

// Upsert inserts or replaces a record by id. Inserting into a collection
// with no active record makes the new record active.
func (c *Collection) Upsert(rec keystore.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("store: record id is required")
	}
	for i := range c.Records {
		if c.Records[i].ID == rec.ID {
			c.Records[i] = rec
			return nil
		}
	}
	c.Records = append(c.Records, rec)
	if c.ActiveID == "" {
		c.ActiveID = rec.ID
	}
	return nil
}

// Get returns the record with the given id.
func (c *Collection) Get(id string) (keystore.Record, error) {
	for _, rec := range c.Records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return keystore.Record{}, ErrNotFound
}

// Active returns the currently active record.
func (c *Collection) Active() (keystore.Record, error) {
	if c.ActiveID == "" {
		return keystore.Record{}, ErrNoActive
	}
	rec, err := c.Get(c.ActiveID)
	if err != nil {
		// Dangling active pointer: structural corruption of the
		// collection document.
		return keystore.Record{}, ErrNoActive
	}
	return rec, nil
}

// SetActive points the active marker at an existing record.
func (c *Collection) SetActive(id string) error {
	if _, err := c.Get(id); err != nil {
		return err
	}
	c.ActiveID = id
	return nil
}

// Remove deletes a record. Deleting the active record reassigns the marker
// to the first remaining record, or clears it when none remain.
func (c *Collection) Remove(id string) error {
	idx := -1
	for i := range c.Records {
		if c.Records[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrNotFound
	}
	c.Records = append(c.Records[:idx], c.Records[idx+1:]...)
	if c.ActiveID == id {
		if len(c.Records) > 0 {
			c.ActiveID = c.Records[0].ID
		} else {
			c.ActiveID = ""
		}
	}
	return nil
}
