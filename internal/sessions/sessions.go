// Package sessions persists per-thread Conversation State.
//
// Three stores implement contracts.ThreadStore: an in-memory map, a TTL cache
// that forgets idle threads, and a bbolt file that survives restarts. Stores
// hand out copies, so a thread only changes when it is saved.
package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/adaptation-atlas/atlas-assistant/internal/config"
	"github.com/adaptation-atlas/atlas-assistant/pkg/contracts"
	"github.com/adaptation-atlas/atlas-assistant/pkg/models"
)

// MemoryStore is a thread-safe in-memory ThreadStore.
type MemoryStore struct {
	mu      sync.RWMutex
	threads map[string][]byte // key: thread ID
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{threads: make(map[string][]byte)}
}

// GetThread retrieves a thread by ID.
func (s *MemoryStore) GetThread(_ context.Context, id string) (*models.Thread, error) {
	s.mu.RLock()
	data, ok := s.threads[id]
	s.mu.RUnlock()
	if !ok {
		return nil, contracts.ErrNotFound
	}
	return decode(data)
}

// SaveThread creates or replaces a thread.
func (s *MemoryStore) SaveThread(_ context.Context, thread *models.Thread) error {
	data, err := encode(thread)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[thread.ID] = data
	return nil
}

// DeleteThread removes a thread. Deleting a missing thread is not an error.
func (s *MemoryStore) DeleteThread(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, id)
	return nil
}

// Len returns the number of stored threads.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.threads)
}

// Purge removes threads last updated before cutoff.
func (s *MemoryStore) Purge(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, data := range s.threads {
		if idleSince(data, cutoff) {
			delete(s.threads, id)
			n++
		}
	}
	return n, nil
}

// Open returns the configured store and a function releasing it.
func Open(cfg config.ThreadConfig) (contracts.ThreadStore, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Store {
	case "", "memory":
		return NewMemoryStore(), noop, nil
	case "ttl":
		return NewTTLStore(cfg.TTL), noop, nil
	case "bolt":
		store, err := OpenBoltStore(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown thread store %q", cfg.Store)
	}
}

func encode(thread *models.Thread) ([]byte, error) {
	if thread.ID == "" {
		return nil, fmt.Errorf("thread id is required")
	}
	now := time.Now().UTC()
	if thread.CreatedAt.IsZero() {
		thread.CreatedAt = now
	}
	thread.UpdatedAt = now
	data, err := json.Marshal(thread)
	if err != nil {
		return nil, fmt.Errorf("encode thread %s: %w", thread.ID, err)
	}
	return data, nil
}

func decode(data []byte) (*models.Thread, error) {
	var thread models.Thread
	if err := json.Unmarshal(data, &thread); err != nil {
		return nil, fmt.Errorf("decode thread: %w", err)
	}
	return &thread, nil
}

// idleSince reports whether an encoded thread was last updated before cutoff.
// Undecodable entries count as idle.
func idleSince(data []byte, cutoff time.Time) bool {
	var stamp struct {
		UpdatedAt time.Time `json:"updated_at"`
	}
	if err := json.Unmarshal(data, &stamp); err != nil {
		return true
	}
	return stamp.UpdatedAt.Before(cutoff)
}
