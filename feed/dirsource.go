package feed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/afero"

	"github.com/lexandro/volindex-mcp/entry"
	"github.com/lexandro/volindex-mcp/ignore"
)

// DirSource walks a directory tree and emits one entry per file and
// directory. It stands in for a raw volume reader on any platform.
//
// Record ids are derived from the slash-separated path relative to the
// root, so rescans and watcher events map to the same ids.
type DirSource struct {
	id      string
	fs      afero.Fs
	root    string
	matcher *ignore.Matcher
	logger  *slog.Logger
}

// DirOptions configures a DirSource.
type DirOptions struct {
	Fs                afero.Fs // defaults to the OS filesystem
	Exclude           []string // doublestar patterns
	ExcludeDirs       []string // nil uses ignore.DefaultExcludeDirs
	ExcludeExtensions []string // nil uses ignore.DefaultExcludeExtensions
	Logger            *slog.Logger
}

// NewDirSource creates a source for the tree at root.
func NewDirSource(id, root string, options DirOptions) *DirSource {
	fs := options.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DirSource{
		id:   id,
		fs:   fs,
		root: filepath.Clean(root),
		matcher: ignore.NewMatcher(ignore.MatcherOptions{
			Fs:                fs,
			RootDir:           root,
			ExcludeDirs:       options.ExcludeDirs,
			ExcludeExtensions: options.ExcludeExtensions,
			CustomPatterns:    options.Exclude,
		}),
		logger: logger,
	}
}

// ID returns the source id.
func (d *DirSource) ID() string { return d.id }

// Root returns the walked directory.
func (d *DirSource) Root() string { return d.root }

// Matcher returns the ignore rules applied during the walk.
func (d *DirSource) Matcher() *ignore.Matcher { return d.matcher }

// Scan walks the tree. Unreadable entries are emitted as record errors; an
// unreadable root fails with ErrSourceUnavailable.
func (d *DirSource) Scan(ctx context.Context, emit func(entry.Entry, error) error) error {
	info, err := d.fs.Stat(d.root)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, d.root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrSourceUnavailable, d.root)
	}

	return afero.Walk(d.fs, d.root, func(p string, info os.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if p == d.root {
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, d.root, err)
			}
			return nil
		}
		rel, relErr := d.Rel(p)
		if relErr != nil {
			return emit(entry.Entry{}, relErr)
		}
		if err != nil {
			if emitErr := emit(entry.Entry{}, fmt.Errorf("%s: %w", rel, err)); emitErr != nil {
				return emitErr
			}
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.matcher.ShouldIgnore(rel, info.IsDir()) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		return emit(EntryFor(rel, info), nil)
	})
}

// Stat returns the entry for a path relative to the root.
func (d *DirSource) Stat(rel string) (entry.Entry, error) {
	info, err := d.fs.Stat(filepath.Join(d.root, filepath.FromSlash(rel)))
	if err != nil {
		return entry.Entry{}, err
	}
	return EntryFor(rel, info), nil
}

// Rel converts an absolute path under the root to the slash form used for
// record ids.
func (d *DirSource) Rel(p string) (string, error) {
	rel, err := filepath.Rel(d.root, p)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// RecordIDFor returns the record id of a slash-separated relative path.
// RootID is reserved, so a zero hash is remapped.
func RecordIDFor(rel string) uint64 {
	id := xxhash.Sum64String(rel)
	if id == entry.RootID {
		id = 1
	}
	return id
}

// ParentIDFor returns the parent record id of a relative path.
func ParentIDFor(rel string) uint64 {
	dir := path.Dir(rel)
	if dir == "." || dir == "/" {
		return entry.RootID
	}
	return RecordIDFor(dir)
}

// EntryFor builds the entry for a relative path and its file info.
func EntryFor(rel string, info os.FileInfo) entry.Entry {
	e := entry.Entry{
		Name:        info.Name(),
		IsDirectory: info.IsDir(),
		Modified:    entry.TimestampOf(info.ModTime()),
		RecordID:    RecordIDFor(rel),
		ParentID:    ParentIDFor(rel),
	}
	if !e.IsDirectory && info.Size() > 0 {
		e.Size = uint64(info.Size())
	}
	return e
}
