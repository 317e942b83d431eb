package adapter

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/m-mizutani/goerr/v2"
	bolt "go.etcd.io/bbolt"
)

var archiveBucket = []byte("archive")

// BoltStorage implements Storage on a local bbolt file
type BoltStorage struct {
	db *bolt.DB
}

// NewBoltStorage opens (or creates) the bbolt file at path
func NewBoltStorage(path string) (*BoltStorage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, goerr.Wrap(err, "failed to create storage directory", goerr.V("path", path))
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open bolt storage", goerr.V("path", path))
	}

	return &BoltStorage{db: db}, nil
}

// Close releases the file lock
func (s *BoltStorage) Close() error {
	return s.db.Close()
}

func (s *BoltStorage) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(archiveBucket)
		if b == nil {
			return nil
		}
		// values are only valid inside the transaction
		if v := b.Get([]byte(key)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read bolt storage", goerr.V("key", key))
	}
	return data, nil
}

func (s *BoltStorage) Put(ctx context.Context, key string, data []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(archiveBucket)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
	if err != nil {
		return goerr.Wrap(err, "failed to write bolt storage", goerr.V("key", key))
	}
	return nil
}
