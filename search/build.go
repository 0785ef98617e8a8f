package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/lexandro/volindex-mcp/entry"
	"github.com/lexandro/volindex-mcp/filter"
	"github.com/lexandro/volindex-mcp/index"
	"github.com/lexandro/volindex-mcp/metrics"
)

// filterHeadroom is the extra filter capacity planned for incremental
// updates before a rebuild is needed.
const filterHeadroom = 1.25

const retryBaseDelay = 10 * time.Millisecond

// dedup resolves duplicate record ids last-wins, keeping the position of the
// first occurrence, and reports each dropped record as a warning.
func dedup(entries []entry.Entry) ([]entry.Entry, []entry.Warning) {
	pos := make(map[uint64]int, len(entries))
	out := make([]entry.Entry, 0, len(entries))
	var warnings []entry.Warning
	for _, e := range entries {
		if i, ok := pos[e.RecordID]; ok {
			out[i] = e
			warnings = append(warnings, entry.Warning{Kind: entry.WarnDuplicate, RecordID: e.RecordID})
			continue
		}
		pos[e.RecordID] = len(out)
		out = append(out, e)
	}
	return out, warnings
}

type shard struct {
	entries []entry.Entry
	tokens  uint64
	segment *index.Segment
	filter  *filter.Filter
}

// shardSize splits n entries into at most shards contiguous ranges.
func shardSize(n, shards int) int {
	if shards < 1 {
		shards = 1
	}
	size := (n + shards - 1) / shards
	return max(size, 1)
}

// splitShards partitions store entries into contiguous record id ranges.
func (c *Coordinator) splitShards(store *entry.Store) []*shard {
	chunks := lo.Chunk(store.Entries(), shardSize(store.Len(), c.cfg.Shards))
	return lo.Map(chunks, func(chunk []entry.Entry, _ int) *shard {
		return &shard{entries: chunk}
	})
}

// buildParts analyzes store entries in parallel shards. When prebuilt is nil
// every shard also fills its own filter with the same parameters and the
// shard filters are merged by union.
func (c *Coordinator) buildParts(ctx context.Context, store *entry.Store, prebuilt *filter.Filter) (*filter.Filter, uint64, []*index.Segment, error) {
	shards := c.splitShards(store)
	g, gctx := errgroup.WithContext(ctx)
	for _, sh := range shards {
		g.Go(func() error {
			sh.segment = index.Analyze(sh.entries)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, nil, err
	}
	segments := lo.Map(shards, func(sh *shard, _ int) *index.Segment { return sh.segment })
	if prebuilt != nil {
		return prebuilt, c.capacityOf(prebuilt), segments, nil
	}
	f, capacity, err := c.fillFilter(ctx, shards)
	if err != nil {
		return nil, 0, nil, err
	}
	return f, capacity, segments, nil
}

// buildFilter builds a filter over all store names.
func (c *Coordinator) buildFilter(ctx context.Context, store *entry.Store) (*filter.Filter, uint64, error) {
	return c.fillFilter(ctx, c.splitShards(store))
}

// fillFilter plans the filter from the token count of all shards, fills one
// filter per shard in parallel and unions them.
func (c *Coordinator) fillFilter(ctx context.Context, shards []*shard) (*filter.Filter, uint64, error) {
	g, gctx := errgroup.WithContext(ctx)
	for _, sh := range shards {
		g.Go(func() error {
			for _, e := range sh.entries {
				sh.tokens += uint64(len(filter.NameTokens(e.Name)))
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	var total uint64
	for _, sh := range shards {
		total += sh.tokens
	}
	capacity := uint64(math.Ceil(float64(total)*filterHeadroom)) + 64
	params := filter.NewParams(int(capacity), c.cfg.FalsePositiveRate)

	g, gctx = errgroup.WithContext(ctx)
	for _, sh := range shards {
		g.Go(func() error {
			sh.filter = filter.New(params)
			for i, e := range sh.entries {
				if i%4096 == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				sh.filter.InsertName(e.Name)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	f := filter.New(params)
	for _, sh := range shards {
		if err := f.Union(sh.filter); err != nil {
			return nil, 0, fmt.Errorf("merging shard filters: %w", err)
		}
	}
	return f, capacity, nil
}

// capacityOf estimates the planned token count of a filter loaded without
// its build metadata.
func (c *Coordinator) capacityOf(f *filter.Filter) uint64 {
	p := f.Params()
	rate := c.cfg.FalsePositiveRate
	n := float64(p.Bits) * math.Ln2 * math.Ln2 / -math.Log(rate)
	return max(uint64(n), f.Count())
}

// withWriter runs op against the index writer, retrying with exponential
// backoff while the writer is busy.
func (c *Coordinator) withWriter(ctx context.Context, op func() error) error {
	delay := retryBaseDelay
	for attempt := 0; ; attempt++ {
		err := op()
		if !errors.Is(err, index.ErrWriterBusy) || attempt >= c.cfg.WriterRetries {
			return err
		}
		metrics.RecordWriterRetry()
		c.logger.Debug("index writer busy, retrying", "source", c.src.ID(), "attempt", attempt+1, "delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

// discardStaged drops index work staged by a failed apply. It runs even when
// ctx is already cancelled.
func (c *Coordinator) discardStaged(ctx context.Context) {
	if err := c.withWriter(context.WithoutCancel(ctx), c.ix.Rollback); err != nil {
		c.logger.Warn("failed to discard staged index work", "error", err)
	}
}

// commitSegments stages segments in order on ix and commits them.
func (c *Coordinator) commitSegments(ctx context.Context, ix *index.Index, segments []*index.Segment) (*index.Reader, error) {
	for _, seg := range segments {
		if err := c.withWriter(ctx, func() error { return ix.AddSegment(seg) }); err != nil {
			return nil, fmt.Errorf("staging segment: %w", err)
		}
	}
	var reader *index.Reader
	err := c.withWriter(ctx, func() error {
		var err error
		reader, err = ix.Commit()
		return err
	})
	if err != nil {
		return nil, err
	}
	return reader, nil
}
