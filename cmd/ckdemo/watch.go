package main

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	apperrors "github.com/odvcencio/componentkit/pkg/errors"
	"github.com/odvcencio/componentkit/pkg/logging"
)

// watchScript calls replay each time the script at path is written, until
// ctx is done. A failing replay is logged and the watch continues.
func watchScript(ctx context.Context, path string, replay func(context.Context) error, logger *logging.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "creating file watcher")
	}
	defer watcher.Close()

	// Editors often replace the file, so watch its directory.
	target, err := filepath.Abs(path)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "resolving script path").WithContext("path", path)
	}
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeConfigLoad, "watching script").WithContext("path", path)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			_ = logger.Info(logging.CategoryConfig, "script_changed", "replaying", map[string]any{"path": path})
			if err := replay(ctx); err != nil {
				_ = logger.Error(logging.CategoryConfig, "replay_failed", err.Error(), map[string]any{"path": path})
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			_ = logger.Warn(logging.CategoryConfig, "watch_error", err.Error(), nil)
		}
	}
}
