package sessions

import (
	"context"
	"time"

	"github.com/adaptation-atlas/atlas-assistant/pkg/contracts"
	"github.com/adaptation-atlas/atlas-assistant/pkg/models"
	"github.com/patrickmn/go-cache"
)

// TTLStore forgets threads that have not been saved for ttl.
type TTLStore struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewTTLStore creates a TTL store. Expired threads are purged every ttl/2.
func NewTTLStore(ttl time.Duration) *TTLStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TTLStore{cache: cache.New(ttl, ttl/2), ttl: ttl}
}

func (s *TTLStore) GetThread(_ context.Context, id string) (*models.Thread, error) {
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, contracts.ErrNotFound
	}
	return decode(v.([]byte))
}

// SaveThread stores the thread and restarts its expiry.
func (s *TTLStore) SaveThread(_ context.Context, thread *models.Thread) error {
	data, err := encode(thread)
	if err != nil {
		return err
	}
	s.cache.Set(thread.ID, data, s.ttl)
	return nil
}

func (s *TTLStore) DeleteThread(_ context.Context, id string) error {
	s.cache.Delete(id)
	return nil
}

// Len returns the number of live threads, including expired ones not yet purged.
func (s *TTLStore) Len() int {
	return s.cache.ItemCount()
}
