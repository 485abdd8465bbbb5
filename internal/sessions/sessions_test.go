package sessions_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/adaptation-atlas/atlas-assistant/internal/config"
	"github.com/adaptation-atlas/atlas-assistant/internal/sessions"
	"github.com/adaptation-atlas/atlas-assistant/pkg/contracts"
	"github.com/adaptation-atlas/atlas-assistant/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleThread() *models.Thread {
	return &models.Thread{
		ID: "thread-1",
		Messages: []models.ChatMessage{
			{Role: models.RoleUser, Content: "What crops are grown in Kenya?"},
			{Role: models.RoleTool, Name: "execute_sql", Content: "Data returned", Artifact: json.RawMessage(`{"rows":[]}`)},
		},
		SQLQuery: &models.SQLQuery{Query: "SELECT 1", Explanation: "one"},
		Result:   &models.Table{Columns: []string{"crop"}, Rows: [][]any{{"maize"}}},
		Chart:    &models.Chart{Kind: "bar", Metadata: json.RawMessage(`{"title":"t"}`)},
	}
}

func stores(t *testing.T) map[string]contracts.ThreadStore {
	t.Helper()
	bolt, err := sessions.OpenBoltStore(filepath.Join(t.TempDir(), "threads", "threads.db"))
	require.NoError(t, err)
	t.Cleanup(func() { bolt.Close() })
	return map[string]contracts.ThreadStore{
		"memory": sessions.NewMemoryStore(),
		"ttl":    sessions.NewTTLStore(time.Hour),
		"bolt":   bolt,
	}
}

func TestStores(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.GetThread(ctx, "thread-1")
			assert.True(t, errors.Is(err, contracts.ErrNotFound))

			thread := sampleThread()
			require.NoError(t, store.SaveThread(ctx, thread))
			assert.False(t, thread.CreatedAt.IsZero())

			got, err := store.GetThread(ctx, "thread-1")
			require.NoError(t, err)
			assert.Equal(t, thread.Messages, got.Messages)
			assert.Equal(t, thread.SQLQuery, got.SQLQuery)
			assert.Equal(t, "bar", got.Chart.Kind)
			assert.Equal(t, []string{"crop"}, got.Result.Columns)

			// Stores hand out copies.
			got.SQLQuery = nil
			again, err := store.GetThread(ctx, "thread-1")
			require.NoError(t, err)
			assert.NotNil(t, again.SQLQuery)

			require.NoError(t, store.DeleteThread(ctx, "thread-1"))
			_, err = store.GetThread(ctx, "thread-1")
			assert.True(t, errors.Is(err, contracts.ErrNotFound))
		})
	}
}

func TestSaveRequiresID(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, store.SaveThread(ctx, &models.Thread{}))
		})
	}
}

func TestTTLStoreExpires(t *testing.T) {
	ctx := context.Background()
	store := sessions.NewTTLStore(20 * time.Millisecond)
	require.NoError(t, store.SaveThread(ctx, sampleThread()))
	assert.Equal(t, 1, store.Len())

	time.Sleep(50 * time.Millisecond)
	_, err := store.GetThread(ctx, "thread-1")
	assert.True(t, errors.Is(err, contracts.ErrNotFound))
}

func TestBoltStorePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "threads.db")

	store, err := sessions.OpenBoltStore(path)
	require.NoError(t, err)
	require.NoError(t, store.SaveThread(ctx, sampleThread()))
	require.NoError(t, store.Close())

	reopened, err := sessions.OpenBoltStore(path)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, 1, reopened.Len())
	got, err := reopened.GetThread(ctx, "thread-1")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", got.SQLQuery.Query)
}

func TestOpen(t *testing.T) {
	for _, kind := range []string{"", "memory", "ttl"} {
		store, closeFn, err := sessions.Open(config.ThreadConfig{Store: kind, TTL: time.Minute})
		require.NoError(t, err)
		assert.NotNil(t, store)
		assert.NoError(t, closeFn())
	}

	store, closeFn, err := sessions.Open(config.ThreadConfig{Store: "bolt", DBPath: filepath.Join(t.TempDir(), "t.db")})
	require.NoError(t, err)
	assert.IsType(t, &sessions.BoltStore{}, store)
	assert.NoError(t, closeFn())

	_, _, err = sessions.Open(config.ThreadConfig{Store: "redis"})
	assert.Error(t, err)
}
