package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/fyrsmithlabs/knowledged/internal/retrieval"
	"go.uber.org/zap"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// Watcher emits documents for files that change under a watched root.
// Consumers feed them to ReindexSource for incremental updates.
type Watcher struct {
	root    string
	loader  *Loader
	watcher *fsnotify.Watcher
	logger  *zap.Logger
	docs    chan retrieval.Document
	removed chan string
	stop    chan struct{}

	// files holds the source IDs of eligible files seen under root. When a
	// directory is removed fsnotify reports only the directory path, so the
	// set is what lets us emit a removal per contained file. Touched only by
	// the constructor and the event goroutine.
	files map[string]bool
}

// NewWatcher creates a watcher over root. fsnotify does not watch
// recursively, so every subdirectory is registered up front and new
// directories are registered as they appear.
func NewWatcher(root string, loader *Loader, logger *zap.Logger) (*Watcher, error) {
	if loader == nil {
		return nil, errors.New("loader is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	w := &Watcher{
		root:    filepath.Clean(root),
		loader:  loader,
		watcher: fsw,
		logger:  logger,
		docs:    make(chan retrieval.Document, 16),
		removed: make(chan string, 16),
		stop:    make(chan struct{}),
		files:   make(map[string]bool),
	}

	if err := w.addRecursive(w.root); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	return w, nil
}

// Start begins processing filesystem events in a background goroutine.
func (w *Watcher) Start(ctx context.Context) {
	go w.processEvents(ctx)
	w.logger.Info("watching for changes", zap.String("root", w.root))
}

// Stop stops the watcher and releases its resources.
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
	default:
		close(w.stop)
		_ = w.watcher.Close()
	}
}

// Documents returns the channel of changed documents.
func (w *Watcher) Documents() <-chan retrieval.Document {
	return w.docs
}

// Removed returns the channel of source IDs whose files were deleted.
func (w *Watcher) Removed() <-chan string {
	return w.removed
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			if w.loader.eligible(path) {
				if sourceID, ok := w.sourceID(path); ok {
					w.files[sourceID] = true
				}
			}
			return nil
		}
		if defaultSkipDirs[entry.Name()] {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	switch {
	case event.Op.Has(fsnotify.Create):
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !defaultSkipDirs[filepath.Base(event.Name)] {
				_ = w.addRecursive(event.Name)
			}
			return
		}
		w.emitChanged(event.Name)
	case event.Op.Has(fsnotify.Write):
		w.emitChanged(event.Name)
	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		w.emitRemoved(event.Name)
	}
}

func (w *Watcher) emitChanged(path string) {
	sourceID, ok := w.sourceID(path)
	if !ok || !w.loader.eligible(path) {
		return
	}

	doc, loaded, err := w.loader.loadFile(path, sourceID)
	if err != nil || !loaded {
		return
	}
	w.files[sourceID] = true

	// Non-blocking send: a slow consumer drops events rather than wedging
	// the watcher; the next write to the file produces a fresh one.
	select {
	case w.docs <- doc:
	default:
		w.logger.Warn("dropping change event, consumer is behind",
			zap.String("source_id", doc.SourceID))
	}
}

// emitRemoved emits removals for a deleted path. For a file the ID is
// emitted directly; for a directory, fsnotify reports only the directory
// itself, so every tracked file under it is expanded into its own removal.
func (w *Watcher) emitRemoved(path string) {
	sourceID, ok := w.sourceID(path)
	if !ok {
		return
	}

	if w.loader.eligible(path) {
		delete(w.files, sourceID)
		w.send(sourceID)
		return
	}

	prefix := sourceID + "/"
	if sourceID == "." {
		// The root itself was removed; every tracked file is gone.
		prefix = ""
	}
	for id := range w.files {
		if strings.HasPrefix(id, prefix) {
			delete(w.files, id)
			w.send(id)
		}
	}
}

func (w *Watcher) send(sourceID string) {
	select {
	case w.removed <- sourceID:
	default:
		w.logger.Warn("dropping removal event, consumer is behind",
			zap.String("source_id", sourceID))
	}
}

// sourceID maps an absolute event path to the slash-relative ID LoadDir
// would have assigned it.
func (w *Watcher) sourceID(path string) (string, bool) {
	relPath, err := filepath.Rel(w.root, path)
	if err != nil {
		return "", false
	}
	return filepath.ToSlash(relPath), true
}
