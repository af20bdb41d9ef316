package catalog

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch reloads the catalog whenever path changes, until ctx is done.
// The parent directory is watched so editors that replace the file are seen.
// A file that fails to parse is logged and the previous catalog stays.
func (c *Catalog) Watch(ctx context.Context, path string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve catalog path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create catalog watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch catalog directory: %w", err)
	}

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
				if filepath.Clean(event.Name) != abs || !event.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				if err := c.Reload(abs); err != nil {
					logger.Warn("catalog reload failed, keeping previous catalog",
						zap.String("path", abs), zap.Error(err))
					continue
				}
				logger.Info("catalog reloaded", zap.String("path", abs))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("catalog watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
