// Package rarity ranks today's flavors by how many stores are serving them.
// Tables are immutable once built; Cache keeps the most recent one keyed by
// a generation fingerprint of the data it was built from.
package rarity

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sells-group/custard-cli/internal/model"
)

// Table maps each flavor served on Date to the stores serving it.
type Table struct {
	Generation string
	Date       time.Time

	stores map[string]map[string]struct{}
	ranks  map[string]int
}

// Build creates a table from observations dated on date. Other dates are
// ignored.
func Build(obs []model.Observation, date time.Time, generation string) *Table {
	date = model.Day(date)
	t := &Table{
		Generation: generation,
		Date:       date,
		stores:     make(map[string]map[string]struct{}),
		ranks:      make(map[string]int),
	}
	for _, o := range obs {
		if !model.Day(o.Date).Equal(date) {
			continue
		}
		key := model.NormalizeFlavor(o.Flavor)
		if key == "" {
			continue
		}
		set, ok := t.stores[key]
		if !ok {
			set = make(map[string]struct{})
			t.stores[key] = set
		}
		set[o.StoreID] = struct{}{}
	}

	keys := make([]string, 0, len(t.stores))
	for k := range t.stores {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ci, cj := len(t.stores[keys[i]]), len(t.stores[keys[j]])
		if ci != cj {
			return ci < cj
		}
		return keys[i] < keys[j]
	})
	for i, k := range keys {
		t.ranks[k] = i + 1
	}
	return t
}

// StoresServing returns how many stores serve flavor on the table's date.
func (t *Table) StoresServing(flavor string) int {
	if t == nil {
		return 0
	}
	return len(t.stores[model.NormalizeFlavor(flavor)])
}

// Rank returns the flavor's rarity rank (1 = rarest), or 0 when no store
// serves it.
func (t *Table) Rank(flavor string) int {
	if t == nil {
		return 0
	}
	return t.ranks[model.NormalizeFlavor(flavor)]
}

// Len returns the number of distinct flavors in the table.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.stores)
}

// Fingerprint derives a generation key from the table date, the newest
// capture timestamp, and the row count.
func Fingerprint(date, newestCapture time.Time, rows int) string {
	raw := fmt.Sprintf("%s|%d|%d", model.FormatDate(date), newestCapture.UTC().UnixNano(), rows)
	h := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", h[:8])
}

// Cache holds the most recently built table. The zero value is ready to use.
type Cache struct {
	mu    sync.Mutex
	table *Table
}

// Get returns the cached table when its generation matches, otherwise it
// calls build and caches the result. A failed build leaves the cache as is.
func (c *Cache) Get(generation string, build func() (*Table, error)) (*Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.table != nil && c.table.Generation == generation {
		return c.table, nil
	}
	t, err := build()
	if err != nil {
		return nil, err
	}
	t.Generation = generation
	c.table = t
	return t, nil
}

// Reset drops the cached table.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.table = nil
	c.mu.Unlock()
}
