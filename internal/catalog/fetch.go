package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ParquetMediaType marks the assets an item must carry to be kept.
const ParquetMediaType = "application/vnd.apache.parquet"

// HarvestResult summarizes one Harvest.
type HarvestResult struct {
	Catalogs int
	Items    int
	Written  int
	Elapsed  time.Duration
}

// Harvester copies the parquet-bearing items of a remote STAC catalog into a
// local directory that LoadDir can read. Link hrefs of written items are
// made absolute.
type Harvester struct {
	client  *http.Client
	dir     string
	visited map[string]bool
	result  HarvestResult
}

// NewHarvester creates a harvester writing into dir. A nil client uses
// http.DefaultClient.
func NewHarvester(client *http.Client, dir string) *Harvester {
	if client == nil {
		client = http.DefaultClient
	}
	return &Harvester{client: client, dir: dir}
}

// Harvest walks the catalog at rootURL through its child and item links.
// Raster item documents (*.tif.json) are never fetched.
func (h *Harvester) Harvest(ctx context.Context, rootURL string) (*HarvestResult, error) {
	start := time.Now()
	h.visited = make(map[string]bool)
	h.result = HarvestResult{}

	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", h.dir, err)
	}
	root, err := url.Parse(rootURL)
	if err != nil {
		return nil, fmt.Errorf("parse catalog url: %w", err)
	}
	if err := h.walkCatalog(ctx, root); err != nil {
		return nil, err
	}
	h.result.Elapsed = time.Since(start)
	res := h.result
	return &res, nil
}

func (h *Harvester) walkCatalog(ctx context.Context, u *url.URL) error {
	doc, err := h.get(ctx, u)
	if err != nil || doc == nil {
		return err
	}
	h.result.Catalogs++

	for _, link := range links(doc) {
		href, _ := link["href"].(string)
		target, err := u.Parse(href)
		if err != nil {
			log.Warn().Err(err).Str("href", href).Msg("Skipping malformed STAC link")
			continue
		}
		switch link["rel"] {
		case "child":
			log.Info().Str("url", target.String()).Msg("Walking into catalog")
			if err := h.walkCatalog(ctx, target); err != nil {
				return err
			}
		case "item":
			if strings.HasSuffix(target.Path, ".tif.json") {
				continue
			}
			if err := h.harvestItem(ctx, target); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *Harvester) harvestItem(ctx context.Context, u *url.URL) error {
	item, err := h.get(ctx, u)
	if err != nil || item == nil {
		return err
	}
	h.result.Items++
	if !hasParquetAsset(item) {
		return nil
	}

	for _, link := range links(item) {
		if href, ok := link["href"].(string); ok {
			if abs, err := u.Parse(href); err == nil {
				link["href"] = abs.String()
			}
		}
	}
	data, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", u, err)
	}
	name := path.Base(u.Path)
	if err := os.WriteFile(filepath.Join(h.dir, name), data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	h.result.Written++
	log.Debug().Str("item", name).Msg("STAC item saved")
	return nil
}

// get fetches a JSON document once; a repeated url returns nil.
func (h *Harvester) get(ctx context.Context, u *url.URL) (map[string]any, error) {
	key := u.String()
	if h.visited[key] {
		return nil, nil
	}
	h.visited[key] = true

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, key, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("get %s: status %d", key, resp.StatusCode)
	}
	var doc map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return doc, nil
}

func links(doc map[string]any) []map[string]any {
	raw, _ := doc["links"].([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, l := range raw {
		if m, ok := l.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func hasParquetAsset(item map[string]any) bool {
	assets, _ := item["assets"].(map[string]any)
	for _, a := range assets {
		if m, ok := a.(map[string]any); ok && m["type"] == ParquetMediaType {
			return true
		}
	}
	return false
}
