package search

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/flynn/go-shlex"
	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/errgroup"

	"github.com/lexandro/volindex-mcp/entry"
	"github.com/lexandro/volindex-mcp/index"
	"github.com/lexandro/volindex-mcp/match"
	"github.com/lexandro/volindex-mcp/metrics"
	"github.com/lexandro/volindex-mcp/tokens"
)

// scanChunk is the number of names one exact or pattern-set worker scans.
const scanChunk = 32 * 1024

// plan is the shape of a routed query.
type plan interface {
	strategy() Strategy
}

type literalQuery struct{ text string }

type patternSetQuery struct {
	text     string
	patterns []string
}

type freeTextQuery struct{ text string }

func (literalQuery) strategy() Strategy    { return StrategyExact }
func (patternSetQuery) strategy() Strategy { return StrategyPatternSet }
func (freeTextQuery) strategy() Strategy   { return StrategyFullText }

// classify routes a query. A single token without ranked-query syntax is a
// literal substring; pattern sets are explicit; everything else is free
// text. A pattern set that does not split degrades to free text.
func classify(query string, opts Options) plan {
	if opts.UsePatternSet {
		patterns, err := shlex.Split(query)
		if err == nil && len(patterns) > 0 {
			return patternSetQuery{text: query, patterns: patterns}
		}
		metrics.RecordDegraded(string(StrategyPatternSet), string(StrategyFullText))
		return freeTextQuery{text: query}
	}
	if isLiteral(query) {
		return literalQuery{text: query}
	}
	return freeTextQuery{text: query}
}

func isLiteral(q string) bool {
	if strings.ContainsAny(q, " \t\r\n\"~") {
		return false
	}
	if strings.HasPrefix(q, "+") || strings.HasPrefix(q, "-") || strings.HasSuffix(q, "*") {
		return false
	}
	if i := strings.IndexByte(q, ':'); i > 0 {
		switch strings.ToLower(q[:i]) {
		case "name", "ext", "size":
			return false
		}
	}
	return true
}

// candidate is a matched entry position with its score.
type candidate struct {
	pos   int
	score float64
}

// Search answers query against the current generation.
func (c *Coordinator) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	gen := c.current.Load()
	if gen == nil {
		return nil, ErrNotReady
	}
	return c.searchGeneration(ctx, gen, query, opts)
}

func (c *Coordinator) searchGeneration(ctx context.Context, gen *Generation, query string, opts Options) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if opts.PathGlob != "" && !doublestar.ValidatePattern(opts.PathGlob) {
		return nil, fmt.Errorf("%w: bad path glob %q", index.ErrInvalidQuery, opts.PathGlob)
	}

	key := opts.cacheKey(gen.ID, query)
	if item := c.cache.Get(key); item != nil {
		metrics.RecordCacheLookup(true)
		return item.Value(), nil
	}
	metrics.RecordCacheLookup(false)

	start := time.Now()
	p := classify(query, opts)
	results, strategy, err := c.execute(ctx, gen, p, opts)
	if err != nil {
		return nil, err
	}
	metrics.RecordQuery(string(strategy), time.Since(start), len(results))
	c.logger.Debug("query served",
		"generation", gen.ID,
		"strategy", strategy,
		"results", len(results),
		"elapsed", time.Since(start),
	)
	c.cache.Set(key, results, ttlcache.DefaultTTL)
	return results, nil
}

// execute runs a plan, degrading to the next more general strategy when a
// cheaper one cannot answer.
func (c *Coordinator) execute(ctx context.Context, gen *Generation, p plan, opts Options) ([]Result, Strategy, error) {
	switch q := p.(type) {
	case literalQuery:
		if gen.Filter == nil {
			metrics.RecordDegraded(string(StrategyFilter), string(StrategyExact))
		} else if !gen.Filter.MightContainSubstring(q.text) {
			return []Result{}, StrategyFilter, nil
		}
		cands, err := scanExact(ctx, gen.Entries, q.text, opts.CaseSensitive)
		if err == nil {
			return c.finish(gen, cands, StrategyExact, opts), StrategyExact, nil
		}
		if ctx.Err() != nil {
			return nil, StrategyExact, ctx.Err()
		}
		c.logger.Debug("exact scan failed, using full text", "error", err)
		metrics.RecordDegraded(string(StrategyExact), string(StrategyFullText))
		return c.execute(ctx, gen, freeTextQuery{text: q.text}, opts)

	case patternSetQuery:
		cands, err := scanPatterns(ctx, gen.Entries, q.patterns, opts.CaseSensitive)
		if err == nil {
			return c.finish(gen, cands, StrategyPatternSet, opts), StrategyPatternSet, nil
		}
		if ctx.Err() != nil {
			return nil, StrategyPatternSet, ctx.Err()
		}
		c.logger.Debug("pattern set scan failed, using full text", "error", err)
		metrics.RecordDegraded(string(StrategyPatternSet), string(StrategyFullText))
		return c.execute(ctx, gen, freeTextQuery{text: q.text}, opts)

	case freeTextQuery:
		limit := opts.limit()
		if opts.PathGlob != "" || opts.Extension != "" {
			limit = max(limit, int(gen.Index.DocCount()))
		}
		hits, err := gen.Index.Search(ctx, q.text, limit)
		if err != nil {
			return nil, StrategyFullText, err
		}
		cands := make([]candidate, 0, len(hits))
		for _, h := range hits {
			if i, ok := gen.Entries.Index(h.RecordID); ok {
				cands = append(cands, candidate{pos: i, score: h.Score})
			}
		}
		return c.finish(gen, cands, StrategyFullText, opts), StrategyFullText, nil
	}
	return nil, "", errors.New("unknown query plan")
}

// finish orders candidates, applies the path and extension filters and
// resolves paths for the kept results only.
func (c *Coordinator) finish(gen *Generation, cands []candidate, strategy Strategy, opts Options) []Result {
	store := gen.Entries
	slices.SortStableFunc(cands, func(a, b candidate) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		}
		ai, bi := store.At(a.pos).RecordID, store.At(b.pos).RecordID
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		}
		return 0
	})

	ext := tokens.Fold(strings.TrimPrefix(opts.Extension, "."))
	limit := opts.limit()
	out := make([]Result, 0, min(limit, len(cands)))
	for _, cd := range cands {
		if len(out) == limit {
			break
		}
		e := store.At(cd.pos)
		if ext != "" && (e.IsDirectory || tokens.Extension(store.FoldedName(cd.pos)) != ext) {
			continue
		}
		r := gen.result(e, cd.score, strategy)
		if opts.PathGlob != "" && !matchesGlob(opts.PathGlob, r.Path, e.Name) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// matchesGlob matches the full path, or the name alone for patterns without
// a separator.
func matchesGlob(pattern, fullPath, name string) bool {
	if ok, _ := doublestar.Match(pattern, fullPath); ok {
		return true
	}
	if !strings.Contains(pattern, "/") {
		ok, _ := doublestar.Match(pattern, name)
		return ok
	}
	return false
}

// scanChunks runs fn over contiguous position ranges of the store in
// parallel and concatenates the results in position order.
func scanChunks(ctx context.Context, store *entry.Store, fn func(lo, hi int) []candidate) ([]candidate, error) {
	n := store.Len()
	parts := make([][]candidate, (n+scanChunk-1)/scanChunk)
	g, gctx := errgroup.WithContext(ctx)
	for i := range parts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			parts[i] = fn(i*scanChunk, min((i+1)*scanChunk, n))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return slices.Concat(parts...), nil
}

// scanExact finds names containing text. Score is the fraction of the name
// covered by the match.
func scanExact(ctx context.Context, store *entry.Store, text string, caseSensitive bool) ([]candidate, error) {
	needle := text
	if !caseSensitive {
		needle = tokens.Fold(text)
	}
	finder, err := match.NewFinder([]byte(needle))
	if err != nil {
		return nil, err
	}
	name := store.Name
	if !caseSensitive {
		name = store.FoldedName
	}
	return scanChunks(ctx, store, func(lo, hi int) []candidate {
		var out []candidate
		for i := lo; i < hi; i++ {
			n := name(i)
			if finder.ContainsString(n) {
				out = append(out, candidate{pos: i, score: float64(finder.Len()) / float64(len(n))})
			}
		}
		return out
	})
}

// scanPatterns finds names containing any of the patterns. Score is the
// fraction of the name covered by non-overlapping matches.
func scanPatterns(ctx context.Context, store *entry.Store, patterns []string, caseSensitive bool) ([]candidate, error) {
	m, err := match.NewMultiMatcher(patterns, match.MultiOptions{CaseInsensitive: !caseSensitive})
	if err != nil {
		return nil, err
	}
	name := store.Name
	if !caseSensitive {
		name = store.FoldedName
	}
	return scanChunks(ctx, store, func(lo, hi int) []candidate {
		var out []candidate
		for i := lo; i < hi; i++ {
			n := name(i)
			if matches := m.FindAllFolded(n); len(matches) > 0 {
				out = append(out, candidate{pos: i, score: float64(match.Coverage(matches)) / float64(len(n))})
			}
		}
		return out
	})
}
