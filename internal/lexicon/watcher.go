package lexicon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the source whenever its lexicon file changes on disk.
// Editors replace files by rename, so the parent directory is watched and
// events are filtered down to the one file.
type Watcher struct {
	source  *Source
	logger  *slog.Logger
	watcher *fsnotify.Watcher
}

func NewWatcher(source *Source, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fileWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &Watcher{
		source:  source,
		logger:  logger.With("component", "lexicon_watcher"),
		watcher: fileWatcher,
	}, nil
}

// Start blocks until the context is cancelled. A source without a file path
// has nothing to watch and returns immediately.
func (w *Watcher) Start(ctx context.Context) error {
	defer w.watcher.Close()

	if w.source.path == "" {
		w.logger.Info("no lexicon file configured, watcher idle")
		<-ctx.Done()
		return nil
	}

	directory := filepath.Dir(w.source.path)
	if err := w.watcher.Add(directory); err != nil {
		return fmt.Errorf("watch lexicon directory %s: %w", directory, err)
	}
	w.logger.Info("lexicon watcher started", "path", w.source.path)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("lexicon watcher stopped")
			return nil
		case event := <-w.watcher.Events:
			w.handleEvent(ctx, event)
		case err := <-w.watcher.Errors:
			if err != nil {
				w.logger.Error("lexicon watcher error", "error", err)
			}
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if filepath.Clean(event.Name) != filepath.Clean(w.source.path) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}
	w.logger.Info("lexicon file changed", "op", event.Op.String())
	if err := w.source.Reload(ctx); err != nil {
		w.logger.Error("lexicon reload failed, keeping previous lexicon", "error", err)
	}
}
