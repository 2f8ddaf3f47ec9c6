package source

import (
	"context"
	_ "embed"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"grantwatch/internal/grant"
)

//go:embed catalog.yaml
var embeddedCatalog []byte

const catalogSourceName = "strategy-2030"

// Catalog is the curated static source. It starts from the embedded catalog
// and can be overridden by an external YAML file, which is hot-reloaded by
// Watch. Gather never fails.
type Catalog struct {
	path string // optional override file, empty means embedded only

	mu      sync.RWMutex
	records []grant.Record
}

type catalogFile struct {
	Grants []grant.Record `yaml:"grants"`
}

// NewCatalog loads the embedded catalog, then overlays the override file if
// one is configured. A broken override file keeps the last good records.
func NewCatalog(path string) (*Catalog, error) {
	c := &Catalog{path: path}
	records, err := parseCatalog(embeddedCatalog)
	if err != nil {
		return nil, fmt.Errorf("embedded catalog: %w", err)
	}
	c.records = records
	if path != "" {
		if err := c.reload(); err != nil {
			if !os.IsNotExist(err) {
				log.Printf("catalog override %s: %v (using embedded)", path, err)
			}
		}
	}
	return c, nil
}

func (c *Catalog) Name() string  { return catalogSourceName }
func (c *Catalog) Curated() bool { return true }

// Gather returns a copy of the current catalog records.
func (c *Catalog) Gather(ctx context.Context) ([]grant.Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := time.Now()
	out := make([]grant.Record, len(c.records))
	for i, r := range c.records {
		r.Origin = grant.OriginStatic
		r.SourceName = catalogSourceName
		r.ObservedAt = now
		out[i] = r
	}
	return out, nil
}

// Len reports the current catalog size.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

func (c *Catalog) reload() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return err
	}
	records, err := parseCatalog(data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.records = records
	c.mu.Unlock()
	log.Printf("catalog: loaded %d records from %s", len(records), c.path)
	return nil
}

func parseCatalog(data []byte) ([]grant.Record, error) {
	var cf catalogFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, err
	}
	records := make([]grant.Record, 0, len(cf.Grants))
	for _, r := range cf.Grants {
		if r.Title == "" {
			log.Printf("catalog: skipping record without title")
			continue
		}
		// Curated entries carry free-text deadline info, not a day count;
		// an unset count means unknown, never "expires today".
		if r.DeadlineDays == 0 {
			r.DeadlineDays = -1
		}
		records = append(records, r)
	}
	return records, nil
}
