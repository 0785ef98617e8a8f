package search

import (
	"errors"
	"time"

	"github.com/lexandro/volindex-mcp/entry"
	"github.com/lexandro/volindex-mcp/filter"
	"github.com/lexandro/volindex-mcp/index"
)

// Stats describes how a generation was built.
type Stats struct {
	Entries       int
	Files         int
	Dirs          int
	TotalSize     uint64
	IngestErrors  int
	Duplicates    int
	Terms         int
	FilterBytes   int
	FilterFill    float64
	ScanDuration  time.Duration
	BuildDuration time.Duration
	Incremental   bool
}

// EntriesPerSecond returns the build throughput including the scan.
func (s Stats) EntriesPerSecond() float64 {
	d := s.ScanDuration + s.BuildDuration
	if d <= 0 {
		return 0
	}
	return float64(s.Entries) / d.Seconds()
}

// Generation is an immutable snapshot of one source: its entries, membership
// filter and full-text reader. A generation stays valid for as long as a
// caller holds it, even after a newer one is published.
type Generation struct {
	ID        uint64
	Source    string
	Entries   *entry.Store
	Filter    *filter.Filter // nil when the filter could not be built
	Index     *index.Reader
	CreatedAt time.Time
	Warnings  []entry.Warning
	Stats     Stats

	// filterCapacity is the token count the filter was planned for.
	filterCapacity uint64
}

// Path resolves the full path of a record. Structural problems still yield
// the best-effort path.
func (g *Generation) Path(recordID uint64) (string, bool) {
	p, err := g.Entries.FullPath(recordID)
	if err != nil && errors.Is(err, entry.ErrNotFound) {
		return "", false
	}
	return p, true
}

// Descendants returns the record ids below id, parents before children.
func (g *Generation) Descendants(id uint64) []uint64 {
	var out []uint64
	seen := map[uint64]struct{}{id: {}}
	stack := []uint64{id}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, child := range g.Entries.ChildrenOf(n) {
			if _, ok := seen[child]; ok {
				continue
			}
			seen[child] = struct{}{}
			out = append(out, child)
			stack = append(stack, child)
		}
	}
	return out
}

// LargestFiles returns the n largest files.
func (g *Generation) LargestFiles(n int) []Result {
	return g.results(g.Entries.Largest(n))
}

// FilesByExtension returns all files with the given extension, in record id
// order.
func (g *Generation) FilesByExtension(ext string) []Result {
	return g.results(g.Entries.ByExtension(ext))
}

func (g *Generation) results(entries []entry.Entry) []Result {
	out := make([]Result, 0, len(entries))
	for _, e := range entries {
		out = append(out, g.result(e, 0, ""))
	}
	return out
}

func (g *Generation) result(e entry.Entry, score float64, strategy Strategy) Result {
	p, _ := g.Path(e.RecordID)
	mod, _ := e.Modified.Time()
	return Result{
		Source:      g.Source,
		RecordID:    e.RecordID,
		Path:        p,
		Name:        e.Name,
		Size:        e.Size,
		IsDirectory: e.IsDirectory,
		Modified:    mod,
		Score:       score,
		Strategy:    strategy,
	}
}
