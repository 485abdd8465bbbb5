package catalog_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/adaptation-atlas/atlas-assistant/internal/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stacServer serves a two-level catalog. The child catalog links back to
// the root to make sure cycles are not walked twice.
func stacServer(t *testing.T) (*httptest.Server, *sync.Map) {
	t.Helper()
	var hits sync.Map
	docs := map[string]string{
		"/stac/catalog.json": `{"type":"Catalog","links":[
			{"rel":"self","href":"./catalog.json"},
			{"rel":"child","href":"./crops/catalog.json"}]}`,
		"/stac/crops/catalog.json": `{"type":"Catalog","links":[
			{"rel":"parent","href":"../catalog.json"},
			{"rel":"child","href":"../catalog.json"},
			{"rel":"item","href":"exposure.json"},
			{"rel":"item","href":"rainfall.json"},
			{"rel":"item","href":"elevation.tif.json"}]}`,
		"/stac/crops/exposure.json": `{"type":"Feature","id":"exposure",
			"properties":{"title":"Crop exposure"},
			"links":[{"rel":"parent","href":"./catalog.json"}],
			"assets":{"data":{"href":"https://example.org/exposure.parquet","type":"application/vnd.apache.parquet"}}}`,
		"/stac/crops/rainfall.json": `{"type":"Feature","id":"rainfall",
			"links":[],
			"assets":{"data":{"href":"https://example.org/rainfall.tif","type":"image/tiff"}}}`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n, _ := hits.LoadOrStore(r.URL.Path, new(int))
		*n.(*int)++
		doc, ok := docs[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, doc)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestHarvest(t *testing.T) {
	srv, hits := stacServer(t)
	dir := filepath.Join(t.TempDir(), "stac")

	res, err := catalog.NewHarvester(srv.Client(), dir).Harvest(context.Background(), srv.URL+"/stac/catalog.json")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Catalogs)
	assert.Equal(t, 2, res.Items)
	assert.Equal(t, 1, res.Written)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "exposure.json", entries[0].Name())

	_, fetched := hits.Load("/stac/crops/elevation.tif.json")
	assert.False(t, fetched, "raster items are skipped without a request")
	n, _ := hits.Load("/stac/catalog.json")
	assert.Equal(t, 1, *n.(*int))

	data, err := os.ReadFile(filepath.Join(dir, "exposure.json"))
	require.NoError(t, err)
	var item struct {
		Links []struct {
			Href string `json:"href"`
		} `json:"links"`
	}
	require.NoError(t, json.Unmarshal(data, &item))
	require.Len(t, item.Links, 1)
	assert.Equal(t, srv.URL+"/stac/crops/catalog.json", item.Links[0].Href)

	c, err := catalog.LoadDir(dir)
	require.NoError(t, err)
	ds, ok := c.Get("exposure")
	require.True(t, ok)
	assert.Equal(t, "Crop exposure", ds.Item.Properties.Title)
}

func TestHarvestStatusError(t *testing.T) {
	srv, _ := stacServer(t)
	_, err := catalog.NewHarvester(srv.Client(), t.TempDir()).Harvest(context.Background(), srv.URL+"/missing.json")
	assert.ErrorContains(t, err, "status 404")
}
