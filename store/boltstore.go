package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
	"github.com/rs/zerolog"

	"quantumharmony.io/vault/keystore"
)

var (
	bucketRecords = []byte("records")
	bucketMeta    = []byte("meta")

	metaActive = []byte("active")
	metaOrder  = []byte("order")
)

// BoltStore persists the collection in a bolt database. Bolt's own file
// lock serializes writers across processes, and every mutation commits in
// a single transaction.
type BoltStore struct {
	db  *bolt.DB
	log zerolog.Logger
}

// OpenBoltStore opens (or creates) a bolt-backed store at path.
func OpenBoltStore(path string, log zerolog.Logger) (*BoltStore, error) {
	if path == "" {
		return nil, errors.New("store: database path is required")
	}
	db, err := bolt.Open(filepath.Clean(path), 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketRecords); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketMeta)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: init buckets: %w", err)
	}
	return &BoltStore{db: db, log: log}, nil
}

func (bs *BoltStore) Save(rec keystore.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("store: record id is required")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: marshal record: %w", err)
	}
	err = bs.db.Update(func(tx *bolt.Tx) error {
		records := tx.Bucket(bucketRecords)
		meta := tx.Bucket(bucketMeta)

		isNew := records.Get([]byte(rec.ID)) == nil
		if err := records.Put([]byte(rec.ID), data); err != nil {
			return err
		}
		if isNew {
			order, err := readOrder(meta)
			if err != nil {
				return err
			}
			order = append(order, rec.ID)
			if err := writeOrder(meta, order); err != nil {
				return err
			}
			if meta.Get(metaActive) == nil {
				return meta.Put(metaActive, []byte(rec.ID))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	bs.log.Debug().Str("id", rec.ID).Str("address", rec.Address).Msg("keystore record saved")
	return nil
}

func (bs *BoltStore) Get(id string) (keystore.Record, error) {
	var rec keystore.Record
	err := bs.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketRecords).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &rec)
	})
	return rec, err
}

func (bs *BoltStore) List() ([]keystore.Record, error) {
	var out []keystore.Record
	err := bs.db.View(func(tx *bolt.Tx) error {
		records := tx.Bucket(bucketRecords)
		order, err := readOrder(tx.Bucket(bucketMeta))
		if err != nil {
			return err
		}
		for _, id := range order {
			data := records.Get([]byte(id))
			if data == nil {
				continue
			}
			var rec keystore.Record
			if err := json.Unmarshal(data, &rec); err != nil {
				return fmt.Errorf("store: parse record %s: %w", id, err)
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

func (bs *BoltStore) Active() (keystore.Record, error) {
	var rec keystore.Record
	err := bs.db.View(func(tx *bolt.Tx) error {
		active := tx.Bucket(bucketMeta).Get(metaActive)
		if active == nil {
			return ErrNoActive
		}
		data := tx.Bucket(bucketRecords).Get(active)
		if data == nil {
			return ErrNoActive
		}
		return json.Unmarshal(data, &rec)
	})
	return rec, err
}

func (bs *BoltStore) SetActive(id string) error {
	return bs.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketRecords).Get([]byte(id)) == nil {
			return ErrNotFound
		}
		return tx.Bucket(bucketMeta).Put(metaActive, []byte(id))
	})
}

func (bs *BoltStore) Delete(id string) error {
	err := bs.db.Update(func(tx *bolt.Tx) error {
		records := tx.Bucket(bucketRecords)
		meta := tx.Bucket(bucketMeta)

		if records.Get([]byte(id)) == nil {
			return ErrNotFound
		}
		if err := records.Delete([]byte(id)); err != nil {
			return err
		}

		order, err := readOrder(meta)
		if err != nil {
			return err
		}
		for i, existing := range order {
			if existing == id {
				order = append(order[:i], order[i+1:]...)
				break
			}
		}
		if err := writeOrder(meta, order); err != nil {
			return err
		}

		if active := meta.Get(metaActive); active != nil && string(active) == id {
			if len(order) > 0 {
				return meta.Put(metaActive, []byte(order[0]))
			}
			return meta.Delete(metaActive)
		}
		return nil
	})
	if err != nil {
		return err
	}
	bs.log.Debug().Str("id", id).Msg("keystore record deleted")
	return nil
}

func (bs *BoltStore) Close() error { return bs.db.Close() }

func readOrder(meta *bolt.Bucket) ([]string, error) {
	data := meta.Get(metaOrder)
	if data == nil {
		return nil, nil
	}
	var order []string
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, fmt.Errorf("store: parse record order: %w", err)
	}
	return order, nil
}

func writeOrder(meta *bolt.Bucket, order []string) error {
	data, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return meta.Put(metaOrder, data)
}

var _ Store = (*BoltStore)(nil)
