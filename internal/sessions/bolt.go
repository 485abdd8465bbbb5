package sessions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adaptation-atlas/atlas-assistant/pkg/contracts"
	"github.com/adaptation-atlas/atlas-assistant/pkg/models"
	"github.com/rs/zerolog/log"
	bolt "go.etcd.io/bbolt"
)

var threadsBucket = []byte("threads")

// BoltStore keeps threads in a bbolt file.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens or creates the database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create thread db directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open thread db %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(threadsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create threads bucket: %w", err)
	}
	log.Info().Str("path", path).Msg("💾 Thread store opened")
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) GetThread(_ context.Context, id string) (*models.Thread, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(threadsBucket).Get([]byte(id))
		if v == nil {
			return contracts.ErrNotFound
		}
		// v is only valid inside the transaction.
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return decode(data)
}

func (s *BoltStore) SaveThread(_ context.Context, thread *models.Thread) error {
	data, err := encode(thread)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(threadsBucket).Put([]byte(thread.ID), data)
	})
}

func (s *BoltStore) DeleteThread(_ context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(threadsBucket).Delete([]byte(id))
	})
}

// Purge removes threads last updated before cutoff.
func (s *BoltStore) Purge(_ context.Context, cutoff time.Time) (int, error) {
	n := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(threadsBucket)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			if idleSince(v, cutoff) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		// Deleting inside ForEach is not allowed.
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		n = len(stale)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("purge threads: %w", err)
	}
	return n, nil
}

// Len returns the number of stored threads.
func (s *BoltStore) Len() int {
	n := 0
	s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(threadsBucket).Stats().KeyN
		return nil
	})
	return n
}

// Close releases the database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
