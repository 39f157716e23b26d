package profile

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch reloads the profile whenever its file changes and hands the result
// to onChange. Editors replace files rather than writing in place, so the
// watch is on the containing directory and events are debounced. A reload
// that fails to parse keeps the previous profile active.
func Watch(ctx context.Context, path string, log *zap.Logger, onChange func(*Profile)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	var debounce *time.Timer
	debounced := make(chan struct{}, 1)
	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(200*time.Millisecond, func() {
				select {
				case debounced <- struct{}{}:
				default:
				}
			})

		case <-debounced:
			p, err := Load(path)
			if err != nil {
				log.Warn("profile reload failed, keeping previous", zap.Error(err))
				continue
			}
			log.Info("profile reloaded", zap.String("path", path))
			onChange(p)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("profile watcher error", zap.Error(err))
		}
	}
}
