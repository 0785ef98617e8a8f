package entry

import (
	"container/heap"
	"fmt"
	"slices"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/lexandro/volindex-mcp/tokens"
)

// DefaultPathCacheSize bounds the number of memoized directory paths.
const DefaultPathCacheSize = 64 * 1024

// visitedInline is the chain length up to which the visited set is a plain
// slice; longer chains switch to a map.
const visitedInline = 32

// StoreOption configures Build.
type StoreOption func(*storeOptions)

type storeOptions struct {
	pathCacheSize int
}

// WithPathCacheSize sets how many directory paths are memoized.
func WithPathCacheSize(n int) StoreOption {
	return func(o *storeOptions) {
		if n > 0 {
			o.pathCacheSize = n
		}
	}
}

// Store owns the entries of one generation. It is immutable after Build and
// safe for concurrent readers.
type Store struct {
	entries []Entry  // sorted by RecordID
	folded  []string // case-folded names, parallel to entries

	// children in CSR form: the children of entries[i] are
	// childIDs[childStart[i]:childStart[i+1]].
	childStart   []int32
	childIDs     []uint64
	rootChildren []uint64

	paths    *lru.Cache[uint64, string] // directory record id -> full path
	warnings []Warning

	totalSize uint64
	files     int
	dirs      int
}

// Build creates a store from entries. The input slice is not retained.
// Duplicate record ids fail the build; dangling parents and cycles are
// recorded as warnings.
func Build(entries []Entry, opts ...StoreOption) (*Store, error) {
	o := storeOptions{pathCacheSize: DefaultPathCacheSize}
	for _, opt := range opts {
		opt(&o)
	}

	sorted := slices.Clone(entries)
	slices.SortFunc(sorted, func(a, b Entry) int {
		switch {
		case a.RecordID < b.RecordID:
			return -1
		case a.RecordID > b.RecordID:
			return 1
		}
		return 0
	})
	for i := 1; i < len(sorted); i++ {
		if sorted[i].RecordID == sorted[i-1].RecordID {
			return nil, fmt.Errorf("building store: record %d: %w", sorted[i].RecordID, ErrDuplicateRecordID)
		}
	}

	paths, err := lru.New[uint64, string](o.pathCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating path cache: %w", err)
	}

	s := &Store{
		entries: sorted,
		folded:  make([]string, len(sorted)),
		paths:   paths,
	}
	for i := range sorted {
		e := &sorted[i]
		s.folded[i] = tokens.Fold(e.Name)
		if e.IsDirectory {
			s.dirs++
		} else {
			s.files++
			s.totalSize += e.Size
		}
	}
	s.buildChildren()
	s.checkStructure()
	return s, nil
}

func (s *Store) buildChildren() {
	counts := make([]int32, len(s.entries)+1)
	for _, e := range s.entries {
		if e.ParentID == RootID {
			s.rootChildren = append(s.rootChildren, e.RecordID)
			continue
		}
		if p, ok := s.Index(e.ParentID); ok {
			counts[p+1]++
		}
	}
	for i := 1; i < len(counts); i++ {
		counts[i] += counts[i-1]
	}
	s.childStart = counts
	s.childIDs = make([]uint64, counts[len(counts)-1])
	next := slices.Clone(counts[:len(counts)-1])
	// entries are visited in id order, so each child list ends up ascending
	for _, e := range s.entries {
		if e.ParentID == RootID {
			continue
		}
		if p, ok := s.Index(e.ParentID); ok {
			s.childIDs[next[p]] = e.RecordID
			next[p]++
		}
	}
}

// checkStructure finds dangling parents and cycle members in one pass over
// the parent forest.
func (s *Store) checkStructure() {
	const (
		unvisited = iota
		active
		done
	)
	state := make([]uint8, len(s.entries))
	var chain []int

	for start := range s.entries {
		if state[start] != unvisited {
			continue
		}
		chain = chain[:0]
		cur := start
		for {
			if state[cur] == done {
				break
			}
			if state[cur] == active {
				// everything from cur's first appearance in the chain is on the cycle
				on := false
				for _, i := range chain {
					if i == cur {
						on = true
					}
					if on {
						s.warnings = append(s.warnings, Warning{Kind: WarnCycle, RecordID: s.entries[i].RecordID})
					}
				}
				break
			}
			state[cur] = active
			chain = append(chain, cur)

			parent := s.entries[cur].ParentID
			if parent == RootID {
				break
			}
			p, ok := s.Index(parent)
			if !ok {
				s.warnings = append(s.warnings, Warning{Kind: WarnDanglingParent, RecordID: s.entries[cur].RecordID})
				break
			}
			cur = p
		}
		for _, i := range chain {
			state[i] = done
		}
	}
}

// Index returns the position of id in the store's id-ordered entries.
func (s *Store) Index(id uint64) (int, bool) {
	return slices.BinarySearchFunc(s.entries, id, func(e Entry, id uint64) int {
		switch {
		case e.RecordID < id:
			return -1
		case e.RecordID > id:
			return 1
		}
		return 0
	})
}

// Get returns the entry with the given record id.
func (s *Store) Get(id uint64) (Entry, bool) {
	i, ok := s.Index(id)
	if !ok {
		return Entry{}, false
	}
	return s.entries[i], true
}

// ChildrenOf returns the ids of the direct children of id in ascending order.
// RootID lists the top-level entries. The result must not be modified.
func (s *Store) ChildrenOf(id uint64) []uint64 {
	if id == RootID {
		return s.rootChildren
	}
	i, ok := s.Index(id)
	if !ok {
		return nil
	}
	return s.childIDs[s.childStart[i]:s.childStart[i+1]]
}

// FullPath resolves the slash-separated path of id from the volume root.
//
// A missing parent yields ErrDanglingParent and a revisited node yields
// ErrCycleDetected, both wrapped in *PathError. In those cases the returned
// path is still usable: resolution stops and the last resolved node is
// treated as rooted.
func (s *Store) FullPath(id uint64) (string, error) {
	i, ok := s.Index(id)
	if !ok {
		return "", fmt.Errorf("full path of record %d: %w", id, ErrNotFound)
	}
	e := &s.entries[i]
	if e.ParentID == RootID {
		return e.Name, nil
	}
	if e.IsDirectory {
		if p, ok := s.paths.Get(id); ok {
			return p, nil
		}
	}

	chain := []int{i} // leaf first
	var visited map[uint64]struct{}
	seen := func(id uint64) bool {
		if visited != nil {
			_, ok := visited[id]
			return ok
		}
		for _, j := range chain {
			if s.entries[j].RecordID == id {
				return true
			}
		}
		return false
	}

	var prefix string
	var pathErr error
	cur := e.ParentID
	for cur != RootID {
		if p, ok := s.paths.Get(cur); ok {
			prefix = p
			break
		}
		if seen(cur) || len(chain) > len(s.entries) {
			pathErr = &PathError{RecordID: id, At: cur, Err: ErrCycleDetected}
			break
		}
		j, ok := s.Index(cur)
		if !ok {
			pathErr = &PathError{RecordID: id, At: cur, Err: ErrDanglingParent}
			break
		}
		chain = append(chain, j)
		if len(chain) == visitedInline {
			visited = make(map[uint64]struct{}, 2*visitedInline)
			for _, k := range chain {
				visited[s.entries[k].RecordID] = struct{}{}
			}
		} else if visited != nil {
			visited[cur] = struct{}{}
		}
		cur = s.entries[j].ParentID
	}

	var b strings.Builder
	b.WriteString(prefix)
	for k := len(chain) - 1; k >= 0; k-- {
		node := &s.entries[chain[k]]
		if b.Len() > 0 {
			b.WriteByte('/')
		}
		b.WriteString(node.Name)
		if pathErr == nil && node.IsDirectory {
			s.paths.Add(node.RecordID, b.String())
		}
	}
	return b.String(), pathErr
}

// Len returns the number of entries.
func (s *Store) Len() int { return len(s.entries) }

// At returns the entry at position i in record id order.
func (s *Store) At(i int) Entry { return s.entries[i] }

// Name returns the leaf name at position i.
func (s *Store) Name(i int) string { return s.entries[i].Name }

// FoldedName returns the case-folded leaf name at position i.
func (s *Store) FoldedName(i int) string { return s.folded[i] }

// Entries returns all entries in record id order. The slice must not be
// modified.
func (s *Store) Entries() []Entry { return s.entries }

// Warnings returns the structural warnings found at build time.
func (s *Store) Warnings() []Warning { return s.warnings }

// TotalSize returns the summed size of all files.
func (s *Store) TotalSize() uint64 { return s.totalSize }

// FileCount returns the number of non-directory entries.
func (s *Store) FileCount() int { return s.files }

// DirCount returns the number of directory entries.
func (s *Store) DirCount() int { return s.dirs }

// Largest returns up to n files ordered by size descending, then record id.
func (s *Store) Largest(n int) []Entry {
	if n <= 0 {
		return nil
	}
	h := &sizeHeap{}
	for i := range s.entries {
		e := &s.entries[i]
		if e.IsDirectory {
			continue
		}
		if h.Len() < n {
			heap.Push(h, e)
			continue
		}
		if sizeLess((*h)[0], e) {
			(*h)[0] = e
			heap.Fix(h, 0)
		}
	}
	out := make([]Entry, h.Len())
	for k := len(out) - 1; k >= 0; k-- {
		out[k] = *heap.Pop(h).(*Entry)
	}
	return out
}

// ByExtension returns the files whose folded extension equals ext (with or
// without a leading dot), in record id order.
func (s *Store) ByExtension(ext string) []Entry {
	ext = tokens.Fold(strings.TrimPrefix(ext, "."))
	if ext == "" {
		return nil
	}
	var out []Entry
	for i := range s.entries {
		if !s.entries[i].IsDirectory && tokens.Extension(s.folded[i]) == ext {
			out = append(out, s.entries[i])
		}
	}
	return out
}

// sizeLess orders a before b when a ranks lower: smaller size, or equal size
// and larger record id.
func sizeLess(a, b *Entry) bool {
	if a.Size != b.Size {
		return a.Size < b.Size
	}
	return a.RecordID > b.RecordID
}

type sizeHeap []*Entry

func (h sizeHeap) Len() int           { return len(h) }
func (h sizeHeap) Less(i, j int) bool { return sizeLess(h[i], h[j]) }
func (h sizeHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *sizeHeap) Push(x any)        { *h = append(*h, x.(*Entry)) }
func (h *sizeHeap) Pop() any {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}
