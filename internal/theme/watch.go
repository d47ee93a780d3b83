package theme

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the catalog each time the CSV file is written, created or
// removed, until ctx is done. It watches the directory so that editors
// which replace the file on save are picked up.
func (c *Catalog) Watch(ctx context.Context) error {
	if c.path == "" {
		return errors.New("no theme file configured")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	dir := filepath.Dir(c.path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go func() {
		defer fsw.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-fsw.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != CSVFile {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
					event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
					if err := c.Reload(); err != nil {
						c.log.Warn("theme reload failed, keeping previous catalog", "error", err)
					}
				}
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				c.log.Warn("theme watcher error", "error", err)
			}
		}
	}()
	return nil
}
