package ignore

import (
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/denormal/go-gitignore"
	"github.com/spf13/afero"

	"github.com/lexandro/volindex-mcp/tokens"
)

// Matcher determines whether a path should be left out of a volume scan.
// It combines excluded directory names, excluded extensions, the root's
// .gitignore and .volindexignore rules, and custom doublestar patterns.
// Thread-safe: Reload() acquires a write lock, ShouldIgnore() a read lock.
type Matcher struct {
	mu             sync.RWMutex
	fs             afero.Fs
	rootDir        string
	gitIgnore      gitignore.GitIgnore
	volIgnore      gitignore.GitIgnore
	excludeDirs    map[string]struct{}
	excludeExts    map[string]struct{}
	customPatterns []string
}

// MatcherOptions configures the ignore matcher. Nil exclusion lists fall
// back to the defaults; empty non-nil lists disable them.
type MatcherOptions struct {
	Fs                afero.Fs
	RootDir           string
	ExcludeDirs       []string
	ExcludeExtensions []string
	CustomPatterns    []string
}

// NewMatcher creates a matcher rooted at options.RootDir.
func NewMatcher(options MatcherOptions) *Matcher {
	fs := options.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	dirs := options.ExcludeDirs
	if dirs == nil {
		dirs = DefaultExcludeDirs
	}
	exts := options.ExcludeExtensions
	if exts == nil {
		exts = DefaultExcludeExtensions
	}

	matcher := &Matcher{
		fs:             fs,
		rootDir:        options.RootDir,
		excludeDirs:    foldedSet(dirs, ""),
		excludeExts:    foldedSet(exts, "."),
		customPatterns: normalizePatterns(options.CustomPatterns),
	}
	matcher.gitIgnore = loadIgnoreFile(fs, filepath.Join(options.RootDir, ".gitignore"), options.RootDir)
	matcher.volIgnore = loadIgnoreFile(fs, filepath.Join(options.RootDir, IgnoreFileName), options.RootDir)
	return matcher
}

func foldedSet(items []string, trimPrefix string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		item = tokens.Fold(strings.TrimPrefix(item, trimPrefix))
		if item != "" {
			set[item] = struct{}{}
		}
	}
	return set
}

// normalizePatterns drops invalid globs and converts separators.
func normalizePatterns(patterns []string) []string {
	var out []string
	for _, p := range patterns {
		p = strings.ReplaceAll(p, "\\", "/")
		if p != "" && doublestar.ValidatePattern(p) {
			out = append(out, p)
		}
	}
	return out
}

// ShouldIgnore reports whether the entry at relativePath (slash-separated,
// relative to the root) is excluded.
func (m *Matcher) ShouldIgnore(relativePath string, isDir bool) bool {
	relativePath = strings.TrimPrefix(path.Clean("/"+relativePath), "/")
	if relativePath == "" {
		return false
	}
	baseName := path.Base(relativePath)

	if isDir {
		if _, ok := m.excludeDirs[tokens.Fold(baseName)]; ok {
			return true
		}
	} else if ext := tokens.Extension(baseName); ext != "" {
		if _, ok := m.excludeExts[ext]; ok {
			return true
		}
	}

	m.mu.RLock()
	gitIgnore, volIgnore := m.gitIgnore, m.volIgnore
	m.mu.RUnlock()

	// Relative() does not require the path to exist
	for _, gi := range []gitignore.GitIgnore{gitIgnore, volIgnore} {
		if gi == nil {
			continue
		}
		if match := gi.Relative(relativePath, isDir); match != nil && match.Ignore() {
			return true
		}
	}

	return m.matchesCustomPatterns(relativePath, baseName)
}

// ShouldIgnoreDir reports whether a directory subtree is skipped entirely.
func (m *Matcher) ShouldIgnoreDir(relativePath string) bool {
	return m.ShouldIgnore(relativePath, true)
}

// IsIgnoreFile reports whether a changed file requires Reload.
func IsIgnoreFile(baseName string) bool {
	return baseName == ".gitignore" || baseName == IgnoreFileName
}

// matchesCustomPatterns matches user patterns against the relative path and
// the base name.
func (m *Matcher) matchesCustomPatterns(relativePath, baseName string) bool {
	for _, pattern := range m.customPatterns {
		if ok, _ := doublestar.Match(pattern, relativePath); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, baseName); ok {
			return true
		}
	}
	return false
}

// Reload re-reads .gitignore and .volindexignore.
// Used when the watcher detects changes to these files.
func (m *Matcher) Reload() {
	newGitIgnore := loadIgnoreFile(m.fs, filepath.Join(m.rootDir, ".gitignore"), m.rootDir)
	newVolIgnore := loadIgnoreFile(m.fs, filepath.Join(m.rootDir, IgnoreFileName), m.rootDir)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.gitIgnore = newGitIgnore
	m.volIgnore = newVolIgnore
}

// loadIgnoreFile reads an ignore file and creates a GitIgnore matcher from it.
func loadIgnoreFile(fs afero.Fs, filePath string, baseDir string) gitignore.GitIgnore {
	f, err := fs.Open(filePath)
	if err != nil {
		return nil
	}
	defer f.Close()

	return gitignore.New(f, baseDir, nil)
}
