package source

import (
	"context"
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the catalog when its override file changes, so catalog edits
// reach the next run without a restart. No-op when no override is configured.
func (c *Catalog) Watch(ctx context.Context) error {
	if c.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	target := filepath.Clean(c.path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(evt.Name) != target {
					continue
				}
				if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					if err := c.reload(); err != nil {
						log.Printf("catalog reload: %v", err)
					}
				}
			case err := <-watcher.Errors:
				log.Printf("catalog watcher error: %v", err)
			}
		}
	}()
	// Watch the directory, not the file: editors replace files on save.
	return watcher.Add(filepath.Dir(target))
}
