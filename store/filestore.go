package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"quantumharmony.io/vault/keystore"
)

// lockAcquireWindow bounds how long a mutation waits for a concurrent
// writer before giving up with ErrLocked.
const lockAcquireWindow = 2 * time.Second

// FileStore persists the collection as a single JSON document.
//
// Writes go through a temp file + rename so a crash never leaves a
// half-written collection, and an exclusive lockfile serializes writers
// from other processes. Reads always load from disk, so multiple processes
// observe each other's committed writes.
type FileStore struct {
	path string
	log  zerolog.Logger
}

// NewFileStore opens (or creates) a file-backed store at path.
func NewFileStore(path string, log zerolog.Logger) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("store: collection path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("store: create directory: %w", err)
	}
	fs := &FileStore{path: path, log: log}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := fs.write(NewCollection()); err != nil {
			return nil, err
		}
	}
	return fs, nil
}

func (fs *FileStore) Save(rec keystore.Record) error {
	return fs.mutate(func(c *Collection) error {
		if err := c.Upsert(rec); err != nil {
			return err
		}
		fs.log.Debug().Str("id", rec.ID).Str("address", rec.Address).Msg("keystore record saved")
		return nil
	})
}

func (fs *FileStore) Get(id string) (keystore.Record, error) {
	c, err := fs.read()
	if err != nil {
		return keystore.Record{}, err
	}
	return c.Get(id)
}

func (fs *FileStore) List() ([]keystore.Record, error) {
	c, err := fs.read()
	if err != nil {
		return nil, err
	}
	return append([]keystore.Record(nil), c.Records...), nil
}

func (fs *FileStore) Active() (keystore.Record, error) {
	c, err := fs.read()
	if err != nil {
		return keystore.Record{}, err
	}
	return c.Active()
}

func (fs *FileStore) SetActive(id string) error {
	return fs.mutate(func(c *Collection) error {
		return c.SetActive(id)
	})
}

func (fs *FileStore) Delete(id string) error {
	return fs.mutate(func(c *Collection) error {
		if err := c.Remove(id); err != nil {
			return err
		}
		fs.log.Debug().Str("id", id).Msg("keystore record deleted")
		return nil
	})
}

func (fs *FileStore) Close() error { return nil }

// mutate runs fn against the on-disk collection under the writer lock and
// commits the result atomically.
func (fs *FileStore) mutate(fn func(*Collection) error) error {
	unlock, err := fs.lock()
	if err != nil {
		return err
	}
	defer unlock()

	c, err := fs.read()
	if err != nil {
		return err
	}
	if err := fn(c); err != nil {
		return err
	}
	return fs.write(c)
}

func (fs *FileStore) read() (*Collection, error) {
	data, err := os.ReadFile(fs.path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewCollection(), nil
		}
		return nil, fmt.Errorf("store: read collection: %w", err)
	}
	c := NewCollection()
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("store: parse collection: %w", err)
	}
	if c.Version != collectionVersion {
		return nil, fmt.Errorf("store: unsupported collection version %d", c.Version)
	}
	return c, nil
}

func (fs *FileStore) write(c *Collection) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal collection: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fs.path), ".collection-*")
	if err != nil {
		return fmt.Errorf("store: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("store: write collection: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("store: sync collection: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("store: close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("store: chmod collection: %w", err)
	}
	if err := os.Rename(tmpPath, fs.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("store: commit collection: %w", err)
	}
	return nil
}

// lock acquires the exclusive writer lockfile, waiting briefly for a
// concurrent writer to finish.
func (fs *FileStore) lock() (func(), error) {
	lockPath := fs.path + ".lock"
	deadline := time.Now().Add(lockAcquireWindow)
	for {
		f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			_ = f.Close()
			return func() { _ = os.Remove(lockPath) }, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("store: acquire lock: %w", err)
		}
		if time.Now().After(deadline) {
			return nil, ErrLocked
		}
		time.Sleep(25 * time.Millisecond)
	}
}

var _ Store = (*FileStore)(nil)
