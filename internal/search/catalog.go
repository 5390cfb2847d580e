package search

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/marcozac/go-jsonc"
	"github.com/sst/mentions/internal/trigger"
)

// Entry is a catalog item as stored in the catalog file.
type Entry struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Detail string `json:"detail,omitempty"`
}

// Catalog is an in-memory provider ranking entries with fuzzy matching.
// It is safe for concurrent use: searches run off the UI goroutine and the
// catalog may be reloaded while they do.
type Catalog struct {
	mu      sync.RWMutex
	entries map[trigger.Kind][]Entry
	source  string
}

func NewCatalog(entries map[trigger.Kind][]Entry) *Catalog {
	c := &Catalog{source: "catalog"}
	c.Replace(entries)
	return c
}

// LoadCatalog reads a JSONC file mapping trigger kinds to entries.
func LoadCatalog(path string) (*Catalog, error) {
	entries, err := readCatalog(path)
	if err != nil {
		return nil, err
	}
	c := NewCatalog(entries)
	c.source = path
	return c, nil
}

func readCatalog(path string) (map[trigger.Kind][]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var entries map[trigger.Kind][]Entry
	if err := jsonc.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return entries, nil
}

// Reload re-reads the file the catalog was loaded from.
func (c *Catalog) Reload() error {
	entries, err := readCatalog(c.source)
	if err != nil {
		return err
	}
	c.Replace(entries)
	return nil
}

func (c *Catalog) Replace(entries map[trigger.Kind][]Entry) {
	copied := make(map[trigger.Kind][]Entry, len(entries))
	for k, v := range entries {
		copied[k] = append([]Entry(nil), v...)
	}
	c.mu.Lock()
	c.entries = copied
	c.mu.Unlock()
}

// Kinds lists the kinds the catalog has entries for.
func (c *Catalog) Kinds() []trigger.Kind {
	c.mu.RLock()
	defer c.mu.RUnlock()
	kinds := make([]trigger.Kind, 0, len(c.entries))
	for k := range c.entries {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Search returns every entry in catalog order for an empty query, otherwise
// the fuzzy matches ranked by edit distance.
func (c *Catalog) Search(ctx context.Context, kind trigger.Kind, query string) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	entries := c.entries[kind]
	c.mu.RUnlock()

	query = strings.TrimSpace(query)
	if query == "" {
		items := make([]Candidate, 0, len(entries))
		for _, e := range entries {
			items = append(items, c.candidate(kind, e))
		}
		return items, nil
	}

	labels := make([]string, len(entries))
	for i, e := range entries {
		labels[i] = e.Label
	}
	matches := fuzzy.RankFindFold(query, labels)
	sort.Stable(matches)

	items := make([]Candidate, 0, len(matches))
	for _, m := range matches {
		items = append(items, c.candidate(kind, entries[m.OriginalIndex]))
	}
	return items, ctx.Err()
}

func (c *Catalog) candidate(kind trigger.Kind, e Entry) Candidate {
	return Candidate{
		ID:        e.ID,
		Label:     e.Label,
		Kind:      kind,
		SourceRef: c.source,
		Detail:    e.Detail,
	}
}
