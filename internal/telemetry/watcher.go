package telemetry

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// LogWatcher calls onChange whenever the display log file is written or replaced
type LogWatcher struct {
	logger   *zap.Logger
	path     string
	onChange func()
}

// NewLogWatcher creates a watcher for path
func NewLogWatcher(logger *zap.Logger, path string, onChange func()) *LogWatcher {
	return &LogWatcher{
		logger:   logger,
		path:     filepath.Clean(path),
		onChange: onChange,
	}
}

// Run watches until ctx is done. The parent directory is watched because the
// file is replaced by rename on every write.
func (w *LogWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		w.logger.Warn("Display log directory not watchable, relying on polling", zap.String("dir", dir), zap.Error(err))
		<-ctx.Done()
		return nil
	}
	w.logger.Info("Watching display log", zap.String("path", w.path))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.logger.Debug("Display log changed", zap.String("op", event.Op.String()))
				w.onChange()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watcher error", zap.Error(err))
		}
	}
}
