package watcher

import (
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/lexandro/volindex-mcp/feed"
	"github.com/lexandro/volindex-mcp/ignore"
)

// Sink receives change events. Coordinators batch them before applying.
type Sink func(feed.Event)

// Tree looks up indexed records below a directory, so that removing or
// moving a directory also removes everything under it.
type Tree interface {
	Descendants(recordID uint64) []uint64
}

// Watcher provides recursive file system watching for a directory source and
// turns file system notifications into change events.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	source    *feed.DirSource
	sink      Sink
	tree      Tree
	logger    *slog.Logger
}

// NewWatcher creates a recursive watcher on the root of source. It registers
// all non-ignored subdirectories for watching. tree may be nil, in which case
// directory removals delete only the directory record.
func NewWatcher(source *feed.DirSource, sink Sink, tree Tree, logger *slog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	w := &Watcher{
		fsWatcher: fsWatcher,
		source:    source,
		sink:      sink,
		tree:      tree,
		logger:    logger.With("source", source.ID()),
	}

	rootDir := source.Root()
	// Walk directory tree and add all non-ignored directories to the watcher
	err = filepath.WalkDir(rootDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // Skip entries that can't be read
		}
		if !d.IsDir() {
			return nil
		}
		if p != rootDir && w.ignoredDir(p) {
			return filepath.SkipDir
		}
		if watchErr := fsWatcher.Add(p); watchErr != nil {
			w.logger.Warn("failed to watch directory", "path", p, "error", watchErr)
		}
		return nil
	})
	if err != nil {
		fsWatcher.Close()
		return nil, err
	}

	return w, nil
}

func (w *Watcher) ignoredDir(absolutePath string) bool {
	rel, err := w.source.Rel(absolutePath)
	if err != nil {
		return true
	}
	return w.source.Matcher().ShouldIgnoreDir(rel)
}

// Start begins listening for file system events. Call this in a goroutine.
// It runs until the watcher is closed.
func (w *Watcher) Start() {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// handleEvent converts a single fsnotify event into change events.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	rel, err := w.source.Rel(event.Name)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return
	}

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.removeTree(rel)

	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		e, err := w.source.Stat(rel)
		if err != nil {
			// gone again before we got to it
			w.logger.Debug("skipped vanished path", "path", rel, "error", err)
			return
		}
		matcher := w.source.Matcher()
		if matcher.ShouldIgnore(rel, e.IsDirectory) {
			return
		}
		if ignore.IsIgnoreFile(path.Base(rel)) {
			matcher.Reload()
			w.logger.Info("reloaded ignore rules", "trigger", rel)
		}
		w.sink(feed.Upsert(e))
		w.logger.Debug("updated", "path", rel)
		if e.IsDirectory && event.Has(fsnotify.Create) {
			w.addTree(event.Name)
		}
	}
}

// removeTree deletes the record at rel and every indexed record below it.
// Moving a directory out of the root reports only the directory itself.
func (w *Watcher) removeTree(rel string) {
	id := feed.RecordIDFor(rel)
	w.sink(feed.Delete(id))
	removed := 1
	if w.tree != nil {
		for _, child := range w.tree.Descendants(id) {
			w.sink(feed.Delete(child))
			removed++
		}
	}
	w.logger.Debug("removed", "path", rel, "records", removed)
}

// addTree watches a new directory and upserts what is already inside it.
// A directory moved in from outside the root arrives as a single create.
func (w *Watcher) addTree(dir string) {
	added := 0
	filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p != dir && w.ignoredDir(p) {
				return filepath.SkipDir
			}
			if watchErr := w.fsWatcher.Add(p); watchErr != nil {
				w.logger.Warn("failed to watch new directory", "path", p, "error", watchErr)
			}
		}
		if p == dir {
			return nil
		}
		rel, err := w.source.Rel(p)
		if err != nil {
			return nil
		}
		e, err := w.source.Stat(rel)
		if err != nil || w.source.Matcher().ShouldIgnore(rel, e.IsDirectory) {
			return nil
		}
		w.sink(feed.Upsert(e))
		added++
		return nil
	})
	if added > 0 {
		w.logger.Debug("indexed new directory contents", "path", dir, "records", added)
	}
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	return w.fsWatcher.Close()
}
