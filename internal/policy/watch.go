package policy

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the registry whenever its pack file changes on disk. It runs
// until ctx is cancelled. Invalid packs are logged and the previous pack
// remains active.
func (r *Registry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(r.path); err != nil {
		return err
	}

	r.logger.Info("watching policy pack", slog.String("path", r.path))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Editors often save via rename, which surfaces as Create.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := r.Reload(); err != nil {
				r.logger.Error("policy pack reload failed, keeping previous pack",
					slog.String("path", r.path), slog.Any("error", err))
			}
			// Re-add in case an atomic save replaced the inode.
			_ = watcher.Add(r.path)

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Error("policy pack watcher error", slog.Any("error", watchErr))
		}
	}
}
