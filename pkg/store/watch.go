package store

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce is how long Watch waits for further changes before reloading.
const DefaultWatchDebounce = 250 * time.Millisecond

// Watch reloads the store whenever the data file is changed by another
// writer. It blocks until ctx is cancelled. Changes written by this store are
// recognised by their content hash and ignored.
func (s *FileStore) Watch(ctx context.Context, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	// Watch the directory: atomic renames replace the file's inode.
	dir := filepath.Dir(s.path)
	if err := fsw.Add(dir); err != nil {
		return err
	}
	base := filepath.Base(s.path)

	s.logger.Info("Parcel data watcher started", "path", s.path, "debounce", debounce)

	ticker := time.NewTicker(debounce)
	defer ticker.Stop()

	pending := false
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				pending = true
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("Parcel data watcher error", "error", err)

		case <-ticker.C:
			if !pending {
				continue
			}
			pending = false
			reloaded, err := s.Reload()
			if err != nil {
				s.logger.Warn("Failed to reload parcel data", "path", s.path, "error", err)
				continue
			}
			if reloaded {
				s.logger.Info("Reloaded parcel data", "path", s.path, "parcels", len(s.state.Load().parcels))
			}
		}
	}
}
