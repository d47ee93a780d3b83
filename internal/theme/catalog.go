// Package theme holds the catalog of card themes: a background (flat color
// or image) and text colors. Built-in themes can be extended or overridden
// by a CSV file that is reloaded when it changes.
package theme

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Catalog is safe for concurrent use.
type Catalog struct {
	mu     sync.RWMutex
	order  []string
	byID   map[string]Theme
	path   string
	log    *slog.Logger
	loaded int
}

// NewCatalog returns a catalog of the built-in themes that reads overrides
// from dataDir/themes.csv. A missing file is not an error.
func NewCatalog(dataDir string, log *slog.Logger) (*Catalog, error) {
	c := &Catalog{log: log}
	if dataDir != "" {
		c.path = filepath.Join(dataDir, CSVFile)
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload rebuilds the catalog from the built-ins and the CSV file. On error
// the previous catalog stays in place.
func (c *Catalog) Reload() error {
	themes := builtinThemes()

	fromFile := 0
	if c.path != "" {
		extra, err := LoadCSV(c.path)
		switch {
		case err == nil:
			themes = append(themes, extra...)
			fromFile = len(extra)
		case errors.Is(err, os.ErrNotExist):
		default:
			return fmt.Errorf("load themes: %w", err)
		}
	}

	order := make([]string, 0, len(themes))
	byID := make(map[string]Theme, len(themes))
	for _, t := range themes {
		if _, seen := byID[t.ID]; !seen {
			order = append(order, t.ID)
		}
		byID[t.ID] = t
	}

	c.mu.Lock()
	c.order, c.byID = order, byID
	c.loaded++
	c.mu.Unlock()

	c.log.Info("themes loaded", "count", len(order), "from_file", fromFile)
	return nil
}

// Lookup returns the theme with id.
func (c *Catalog) Lookup(id string) (Theme, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.byID[id]
	return t, ok
}

// Get returns the theme with id or the default theme.
func (c *Catalog) Get(id string) Theme {
	if t, ok := c.Lookup(id); ok {
		return t
	}
	t, _ := c.Lookup(DefaultID)
	return t
}

// List returns all themes, built-ins first.
func (c *Catalog) List() []Theme {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Theme, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// Generation counts successful loads.
func (c *Catalog) Generation() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}
