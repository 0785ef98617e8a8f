package snapshot

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Store keeps one snapshot file per source under a data directory.
type Store struct {
	fs          afero.Fs
	dir         string
	compression Compression
}

// NewStore creates a store rooted at dir.
func NewStore(fs afero.Fs, dir string, c Compression) *Store {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Store{fs: fs, dir: dir, compression: c}
}

// Path returns the snapshot file of a source.
func (st *Store) Path(sourceID string) string {
	return filepath.Join(st.dir, sanitize(sourceID)+".snap")
}

// sanitize maps a source id to a safe file name.
func sanitize(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

// Save writes s atomically: the file is written under a temporary name and
// renamed into place.
func (st *Store) Save(sourceID string, s *Snapshot) error {
	if err := st.fs.MkdirAll(st.dir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}
	final := st.Path(sourceID)
	tmp := final + ".tmp"

	f, err := st.fs.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("creating snapshot: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := Encode(w, s, st.compression); err != nil {
		f.Close()
		st.fs.Remove(tmp)
		return fmt.Errorf("writing snapshot %s: %w", sourceID, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		st.fs.Remove(tmp)
		return fmt.Errorf("writing snapshot %s: %w", sourceID, err)
	}
	if err := f.Close(); err != nil {
		st.fs.Remove(tmp)
		return fmt.Errorf("closing snapshot %s: %w", sourceID, err)
	}
	if err := st.fs.Rename(tmp, final); err != nil {
		return fmt.Errorf("publishing snapshot %s: %w", sourceID, err)
	}
	return nil
}

// Load reads the snapshot of a source. A missing file yields ErrNotFound.
func (st *Store) Load(sourceID string) (*Snapshot, error) {
	f, err := st.fs.Open(st.Path(sourceID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sourceID)
	}
	if err != nil {
		return nil, fmt.Errorf("opening snapshot %s: %w", sourceID, err)
	}
	defer f.Close()

	s, err := Decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("loading snapshot %s: %w", sourceID, err)
	}
	return s, nil
}

// Remove deletes the snapshot of a source if present.
func (st *Store) Remove(sourceID string) error {
	err := st.fs.Remove(st.Path(sourceID))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
