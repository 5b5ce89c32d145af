package entitlements

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/cacchoeira/FinanceProject/pkg/observability"
)

// Watch reloads the catalog whenever path changes until ctx is done. The
// parent directory is watched so that editors replacing the file by rename
// are picked up.
func (c *Catalog) Watch(ctx context.Context, path string, logger *observability.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return fmt.Errorf("failed to resolve plan catalog path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch plan catalog directory: %w", err)
	}

	logger = logger.WithField("path", absPath)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != absPath {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := c.ReloadFile(absPath); err != nil {
					logger.WithError(err).Warn("plan catalog reload failed; keeping previous plans")
					continue
				}
				logger.Info("plan catalog reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.WithError(err).Warn("plan catalog watcher error")
			}
		}
	}()

	return nil
}
