// Package catalog loads STAC items from disk and renders the dataset views
// used in prompts: the description and the fixed-column schema table.
//
// Items are plain STAC item JSON files. Every asset whose href points at a
// parquet file becomes one Dataset.
package catalog

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/adaptation-atlas/atlas-assistant/pkg/models"
	"github.com/rs/zerolog/log"
)

// Catalog is a thread-safe in-memory lookup of datasets by id.
type Catalog struct {
	mu       sync.RWMutex
	datasets map[string]*models.Dataset // key: "item/asset"
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{datasets: make(map[string]*models.Dataset)}
}

// LoadDir reads every *.json STAC item under dir.
func LoadDir(dir string) (*Catalog, error) {
	c := New()
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		item, err := ReadItem(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Skipping unreadable STAC item")
			return nil
		}
		c.Add(item)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", dir, err)
	}
	log.Info().Str("dir", dir).Int("datasets", c.Len()).Msg("📚 Catalog loaded")
	return c, nil
}

// ReadItem decodes one STAC item file.
func ReadItem(path string) (models.Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Item{}, err
	}
	var item models.Item
	if err := json.Unmarshal(data, &item); err != nil {
		return models.Item{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return item, nil
}

// Add registers every parquet asset of item.
func (c *Catalog) Add(item models.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, asset := range item.Assets {
		if !IsParquet(asset.Href) {
			continue
		}
		ds, err := models.NewDataset(item, key)
		if err != nil {
			continue
		}
		c.datasets[ds.ID()] = ds
	}
}

// Get returns a dataset by "item/asset" id, or by item id when the item has
// exactly one parquet asset.
func (c *Catalog) Get(id string) (*models.Dataset, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if ds, ok := c.datasets[id]; ok {
		return ds, true
	}
	var match *models.Dataset
	for _, ds := range c.datasets {
		if ds.Item.ID == id {
			if match != nil {
				return nil, false
			}
			match = ds
		}
	}
	return match, match != nil
}

// List returns every dataset ordered by id.
func (c *Catalog) List() []*models.Dataset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*models.Dataset, 0, len(c.datasets))
	for _, ds := range c.datasets {
		out = append(out, ds)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.datasets)
}

// IsParquet reports whether href names a parquet file.
func IsParquet(href string) bool {
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	return strings.HasSuffix(strings.ToLower(href), ".parquet")
}
