// Package search owns the published generation of each source and routes
// queries to the cheapest strategy that can answer them: membership filter
// pruning, exact substring scans, multi-pattern scans or the ranked
// full-text index.
package search

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lexandro/volindex-mcp/index"
)

var (
	ErrEmptyQuery = errors.New("empty query")
	ErrNotReady   = errors.New("no generation built yet")
)

// State is the lifecycle state of a coordinator.
type State int

const (
	StateIdle State = iota
	StateBuilding
	StateReady
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuilding:
		return "building"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Strategy names the path that answered a query.
type Strategy string

const (
	StrategyFilter     Strategy = "filter"
	StrategyExact      Strategy = "exact"
	StrategyPatternSet Strategy = "pattern-set"
	StrategyFullText   Strategy = "fulltext"
)

// MaxResultsLimit caps Options.MaxResults.
const MaxResultsLimit = 10000

// Options tunes a single query.
type Options struct {
	CaseSensitive bool
	UsePatternSet bool   // treat the query as shell-quoted literal alternatives
	MaxResults    int    // 0 uses index.DefaultLimit
	PathGlob      string // doublestar pattern matched against the full path or the name
	Extension     string // keep only files with this extension
	SourceID      string // registry only: restrict to one source
}

func (o Options) limit() int {
	switch {
	case o.MaxResults <= 0:
		return index.DefaultLimit
	case o.MaxResults > MaxResultsLimit:
		return MaxResultsLimit
	default:
		return o.MaxResults
	}
}

func (o Options) cacheKey(generation uint64, query string) string {
	return fmt.Sprintf("%d\x00%t\x00%t\x00%d\x00%s\x00%s\x00%s",
		generation, o.CaseSensitive, o.UsePatternSet, o.limit(), o.PathGlob,
		strings.ToLower(strings.TrimPrefix(o.Extension, ".")), query)
}

// Result is one search hit resolved against its generation.
type Result struct {
	Source      string
	RecordID    uint64
	Path        string
	Name        string
	Size        uint64
	IsDirectory bool
	Modified    time.Time
	Score       float64
	Strategy    Strategy
}

// compareResults orders by score descending, then source and record id
// ascending.
func compareResults(a, b Result) int {
	switch {
	case a.Score > b.Score:
		return -1
	case a.Score < b.Score:
		return 1
	}
	if c := strings.Compare(a.Source, b.Source); c != 0 {
		return c
	}
	switch {
	case a.RecordID < b.RecordID:
		return -1
	case a.RecordID > b.RecordID:
		return 1
	}
	return 0
}
