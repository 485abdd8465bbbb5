package indexer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/adaptation-atlas/atlas-assistant/internal/indexer"
	"github.com/adaptation-atlas/atlas-assistant/internal/selector"
	"github.com/adaptation-atlas/atlas-assistant/internal/vectorstore"
	"github.com/adaptation-atlas/atlas-assistant/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder puts "rain" texts on one axis and everything else on the other.
type countingEmbedder struct {
	calls int
	err   error
}

func (c *countingEmbedder) Kind() string    { return "counting" }
func (c *countingEmbedder) Dimensions() int { return 2 }

func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if text == "rain" || text == "Description: rainfall data\nAsset key: data" {
			out[i] = []float64{0, 1}
		} else {
			out[i] = []float64{1, 0}
		}
	}
	return out, nil
}

func dataset(t *testing.T, id string) *models.Dataset {
	t.Helper()
	ds, err := models.NewDataset(models.Item{
		ID:         id,
		Properties: models.Properties{Description: id + " data"},
		Assets:     map[string]models.Asset{"data": {Href: "s3://atlas/" + id + ".parquet"}},
	}, "data")
	require.NoError(t, err)
	return ds
}

func TestIndexThenSelect(t *testing.T) {
	ctx := context.Background()
	emb := &countingEmbedder{}
	store := vectorstore.NewEmbeddedStore()
	ix := indexer.New(emb, store, 2)

	datasets := []*models.Dataset{dataset(t, "crops"), dataset(t, "rainfall"), dataset(t, "livestock")}
	result, err := ix.Index(ctx, datasets)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Datasets)
	assert.Equal(t, 2, emb.calls, "three descriptions in batches of two")

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	ds, _, err := selector.New(emb, store).Select(ctx, "rain")
	require.NoError(t, err)
	assert.Equal(t, "rainfall/data", ds.ID())

	// Re-indexing replaces documents instead of duplicating them.
	_, err = ix.Index(ctx, datasets)
	require.NoError(t, err)
	n, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestIndexEmbedError(t *testing.T) {
	emb := &countingEmbedder{err: errors.New("quota exceeded")}
	_, err := indexer.New(emb, vectorstore.NewEmbeddedStore(), 0).Index(context.Background(), []*models.Dataset{dataset(t, "crops")})
	assert.ErrorContains(t, err, "quota exceeded")
}

func TestIndexEmpty(t *testing.T) {
	emb := &countingEmbedder{}
	result, err := indexer.New(emb, vectorstore.NewEmbeddedStore(), 0).Index(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, result.Datasets)
	assert.Zero(t, emb.calls)
}
