package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/lexandro/volindex-mcp/entry"
	"github.com/lexandro/volindex-mcp/feed"
	"github.com/lexandro/volindex-mcp/filter"
	"github.com/lexandro/volindex-mcp/index"
	"github.com/lexandro/volindex-mcp/metrics"
	"github.com/lexandro/volindex-mcp/snapshot"
)

// Config tunes a coordinator. Zero values select the defaults.
type Config struct {
	Shards            int
	FalsePositiveRate float64
	ErrorThreshold    float64
	WriterRetries     int
	FlushThreshold    int
	FlushInterval     time.Duration
	PathCacheSize     int
	CacheTTL          time.Duration
	CacheSize         uint64
	Snapshots         *snapshot.Store // nil disables persistence
	Logger            *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Shards <= 0 {
		c.Shards = 4
	}
	if c.FalsePositiveRate <= 0 || c.FalsePositiveRate >= 1 {
		c.FalsePositiveRate = filter.DefaultFalsePositiveRate
	}
	if c.ErrorThreshold <= 0 {
		c.ErrorThreshold = feed.DefaultErrorThreshold
	}
	if c.WriterRetries <= 0 {
		c.WriterRetries = 5
	}
	if c.FlushThreshold <= 0 {
		c.FlushThreshold = 1000
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 500 * time.Millisecond
	}
	if c.PathCacheSize <= 0 {
		c.PathCacheSize = entry.DefaultPathCacheSize
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 30 * time.Second
	}
	if c.CacheSize == 0 {
		c.CacheSize = 256
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// Coordinator builds and publishes generations for one source and serves
// queries against the current one.
type Coordinator struct {
	src    feed.Source
	cfg    Config
	logger *slog.Logger

	current  atomic.Pointer[Generation]
	building atomic.Int32
	lastID   atomic.Uint64

	// mu serializes builds and incremental updates.
	mu sync.Mutex
	ix *index.Index // writer behind the current generation

	cache   *ttlcache.Cache[string, []Result]
	batcher *Batcher
}

// NewCoordinator creates an idle coordinator for src.
func NewCoordinator(src feed.Source, cfg Config) *Coordinator {
	cfg = cfg.withDefaults()
	c := &Coordinator{
		src:    src,
		cfg:    cfg,
		logger: cfg.Logger.With("source", src.ID()),
		cache: ttlcache.New[string, []Result](
			ttlcache.WithTTL[string, []Result](cfg.CacheTTL),
			ttlcache.WithCapacity[string, []Result](cfg.CacheSize),
			ttlcache.WithDisableTouchOnHit[string, []Result](),
		),
	}
	c.batcher = NewBatcher(cfg.FlushInterval, cfg.FlushThreshold, c.flushEvents)
	go c.cache.Start()
	return c
}

// ID returns the source id.
func (c *Coordinator) ID() string { return c.src.ID() }

// Source returns the entry feed.
func (c *Coordinator) Source() feed.Source { return c.src }

// State reports Building while any build runs, Ready once a generation has
// been published, and Idle before that.
func (c *Coordinator) State() State {
	switch {
	case c.building.Load() > 0:
		return StateBuilding
	case c.current.Load() != nil:
		return StateReady
	default:
		return StateIdle
	}
}

// Current returns the published generation, or nil.
func (c *Coordinator) Current() *Generation { return c.current.Load() }

// Descendants returns the record ids below id in the published generation.
func (c *Coordinator) Descendants(id uint64) []uint64 {
	gen := c.current.Load()
	if gen == nil {
		return nil
	}
	return gen.Descendants(id)
}

// Scan runs a full scan of the source without building.
func (c *Coordinator) Scan(ctx context.Context) (feed.ScanResult, error) {
	result, err := feed.Collect(ctx, c.src, feed.CollectOptions{
		ErrorThreshold: c.cfg.ErrorThreshold,
		Logger:         c.logger,
	})
	metrics.RecordIngestErrors(c.src.ID(), result.Errors)
	return result, err
}

// Build scans the source and publishes a new generation. On failure or
// cancellation the previous generation stays current.
func (c *Coordinator) Build(ctx context.Context) (*Generation, error) {
	c.building.Add(1)
	defer c.building.Add(-1)

	result, err := c.Scan(ctx)
	if err != nil {
		metrics.RecordBuild(c.src.ID(), "full", 0, false)
		return nil, fmt.Errorf("scanning %s: %w", c.src.ID(), err)
	}
	gen, err := c.buildFrom(ctx, result.Entries, Stats{
		IngestErrors: result.Errors,
		ScanDuration: result.Duration,
	})
	if err != nil {
		return nil, err
	}
	if c.cfg.Snapshots != nil {
		if err := c.save(gen); err != nil {
			c.logger.Warn("failed to save snapshot", "generation", gen.ID, "error", err)
		}
	}
	return gen, nil
}

// BuildFromEntries publishes a generation from an already collected entry
// list.
func (c *Coordinator) BuildFromEntries(ctx context.Context, entries []entry.Entry) (*Generation, error) {
	c.building.Add(1)
	defer c.building.Add(-1)
	return c.buildFrom(ctx, entries, Stats{})
}

func (c *Coordinator) buildFrom(ctx context.Context, entries []entry.Entry, stats Stats) (*Generation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	gen, ix, err := c.assemble(ctx, entries, nil, stats)
	if err != nil {
		metrics.RecordBuild(c.src.ID(), "full", time.Since(start), false)
		c.logger.Warn("build failed", "error", err)
		return nil, err
	}
	c.ix = ix
	c.publish(gen)
	metrics.RecordBuild(c.src.ID(), "full", gen.Stats.BuildDuration, true)
	c.logger.Info("generation published",
		"generation", gen.ID,
		"entries", gen.Stats.Entries,
		"warnings", len(gen.Warnings),
		"elapsed", gen.Stats.BuildDuration,
	)
	return gen, nil
}

// assemble builds a complete generation on a fresh index writer.
func (c *Coordinator) assemble(ctx context.Context, entries []entry.Entry, prebuilt *filter.Filter, stats Stats) (*Generation, *index.Index, error) {
	start := time.Now()
	unique, warnings := dedup(entries)
	store, err := entry.Build(unique, entry.WithPathCacheSize(c.cfg.PathCacheSize))
	if err != nil {
		return nil, nil, fmt.Errorf("building entry store: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	f, capacity, segments, err := c.buildParts(ctx, store, prebuilt)
	if err != nil {
		return nil, nil, err
	}
	ix := index.New()
	reader, err := c.commitSegments(ctx, ix, segments)
	if err != nil {
		return nil, nil, err
	}
	// a cancelled build never publishes
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	stats.Duplicates = len(warnings)
	gen := &Generation{
		Source:         c.src.ID(),
		Entries:        store,
		Filter:         f,
		Index:          reader,
		CreatedAt:      time.Now(),
		Warnings:       append(warnings, store.Warnings()...),
		Stats:          stats,
		filterCapacity: capacity,
	}
	gen.Stats.BuildDuration = time.Since(start)
	return gen, ix, nil
}

// publish assigns the next id and swaps the generation in.
func (c *Coordinator) publish(gen *Generation) {
	gen.ID = c.lastID.Add(1)
	gen.Stats.Entries = gen.Entries.Len()
	gen.Stats.Files = gen.Entries.FileCount()
	gen.Stats.Dirs = gen.Entries.DirCount()
	gen.Stats.TotalSize = gen.Entries.TotalSize()
	gen.Stats.Terms = gen.Index.TermCount()
	var fill float64
	if gen.Filter != nil {
		fill = gen.Filter.FillRatio()
		gen.Stats.FilterBytes = gen.Filter.SizeBytes()
		gen.Stats.FilterFill = fill
	}
	c.current.Store(gen)
	c.cache.DeleteAll()
	metrics.SetGeneration(gen.Source, gen.ID, gen.Stats.Entries, fill)
}

// BuildTask is a build running in the background.
type BuildTask struct {
	done   chan struct{}
	cancel context.CancelFunc
	gen    *Generation
	err    error
}

// Done is closed when the build finishes.
func (t *BuildTask) Done() <-chan struct{} { return t.done }

// Cancel aborts the build. Partial work is discarded.
func (t *BuildTask) Cancel() { t.cancel() }

// Wait blocks until the build finishes.
func (t *BuildTask) Wait() (*Generation, error) {
	<-t.done
	return t.gen, t.err
}

// BuildAsync starts Build on a background goroutine.
func (c *Coordinator) BuildAsync(ctx context.Context) *BuildTask {
	ctx, cancel := context.WithCancel(ctx)
	t := &BuildTask{done: make(chan struct{}), cancel: cancel}
	c.building.Add(1)
	go func() {
		defer close(t.done)
		defer cancel()
		defer c.building.Add(-1)
		t.gen, t.err = c.Build(ctx)
	}()
	return t
}

// Apply publishes a generation with events applied on top of the current
// one. Events are applied in order; the last event for a record wins.
func (c *Coordinator) Apply(ctx context.Context, events []feed.Event) (*Generation, error) {
	if len(events) == 0 {
		if gen := c.current.Load(); gen != nil {
			return gen, nil
		}
		return nil, ErrNotReady
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.current.Load()
	if cur == nil {
		return nil, ErrNotReady
	}
	start := time.Now()

	changes := make(map[uint64]*entry.Entry, len(events))
	order := make([]uint64, 0, len(events))
	for _, ev := range events {
		if _, ok := changes[ev.RecordID]; !ok {
			order = append(order, ev.RecordID)
		}
		switch ev.Op {
		case feed.OpUpsert:
			e := ev.Entry
			e.RecordID = ev.RecordID
			changes[ev.RecordID] = &e
		case feed.OpDelete:
			changes[ev.RecordID] = nil
		}
	}

	merged := make([]entry.Entry, 0, cur.Entries.Len()+len(order))
	for _, e := range cur.Entries.Entries() {
		if ch, ok := changes[e.RecordID]; ok {
			if ch != nil {
				merged = append(merged, *ch)
			}
			continue
		}
		merged = append(merged, e)
	}
	var upserts []entry.Entry
	var deletes []uint64
	for _, id := range order {
		ch := changes[id]
		if ch == nil {
			if _, ok := cur.Entries.Get(id); ok {
				deletes = append(deletes, id)
			}
			continue
		}
		upserts = append(upserts, *ch)
		if _, ok := cur.Entries.Get(id); !ok {
			merged = append(merged, *ch)
		}
	}

	store, err := entry.Build(merged, entry.WithPathCacheSize(c.cfg.PathCacheSize))
	if err != nil {
		return nil, fmt.Errorf("building entry store: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, capacity := c.extendFilter(ctx, cur, store, upserts)

	err = c.withWriter(ctx, func() error { return c.ix.Delete(deletes...) })
	if err == nil {
		err = c.withWriter(ctx, func() error { return c.ix.AddEntries(upserts) })
	}
	var reader *index.Reader
	if err == nil {
		err = c.withWriter(ctx, func() error {
			var err error
			reader, err = c.ix.Commit()
			return err
		})
	}
	if err != nil {
		c.discardStaged(ctx)
		metrics.RecordBuild(c.src.ID(), "incremental", time.Since(start), false)
		return nil, fmt.Errorf("applying events: %w", err)
	}

	gen := &Generation{
		Source:         c.src.ID(),
		Entries:        store,
		Filter:         f,
		Index:          reader,
		CreatedAt:      time.Now(),
		Warnings:       store.Warnings(),
		Stats:          Stats{Incremental: true, BuildDuration: time.Since(start)},
		filterCapacity: capacity,
	}
	c.publish(gen)
	metrics.RecordBuild(c.src.ID(), "incremental", gen.Stats.BuildDuration, true)
	metrics.RecordEvents(c.src.ID(), len(upserts), len(deletes))
	c.logger.Debug("events applied",
		"generation", gen.ID,
		"upserts", len(upserts),
		"deletes", len(deletes),
		"elapsed", gen.Stats.BuildDuration,
	)
	return gen, nil
}

// extendFilter adds the upserted names to a copy of the current filter while
// it stays within planned capacity, and rebuilds it otherwise. Deleted names
// stay in the filter, which only costs false positives.
func (c *Coordinator) extendFilter(ctx context.Context, cur *Generation, store *entry.Store, upserts []entry.Entry) (*filter.Filter, uint64) {
	if cur.Filter != nil {
		var added uint64
		for _, e := range upserts {
			added += uint64(len(filter.NameTokens(e.Name)))
		}
		if cur.Filter.Count()+added <= cur.filterCapacity {
			f := cur.Filter.Clone()
			for _, e := range upserts {
				f.InsertName(e.Name)
			}
			return f, cur.filterCapacity
		}
	}
	f, capacity, err := c.buildFilter(ctx, store)
	if err != nil {
		c.logger.Warn("filter rebuild failed, serving without filter", "error", err)
		return nil, 0
	}
	c.logger.Debug("filter rebuilt", "capacity", capacity)
	return f, capacity
}

// Enqueue batches a live change event. Batches are applied once
// FlushThreshold events are pending or after FlushInterval without new
// events.
func (c *Coordinator) Enqueue(ev feed.Event) {
	c.batcher.Add(ev)
}

// Flush applies pending events immediately.
func (c *Coordinator) Flush() {
	c.batcher.Flush()
}

func (c *Coordinator) flushEvents(events []feed.Event) {
	if _, err := c.Apply(context.Background(), events); err != nil {
		if errors.Is(err, ErrNotReady) {
			c.logger.Debug("dropped events before first build", "events", len(events))
			return
		}
		c.logger.Warn("failed to apply events", "events", len(events), "error", err)
	}
}

// LoadSnapshot publishes the generation persisted by the last full build.
// The filter is restored from its blob rather than rebuilt.
func (c *Coordinator) LoadSnapshot(ctx context.Context) (*Generation, error) {
	if c.cfg.Snapshots == nil {
		return nil, snapshot.ErrNotFound
	}
	s, err := c.cfg.Snapshots.Load(c.src.ID())
	if err != nil {
		return nil, err
	}
	c.building.Add(1)
	defer c.building.Add(-1)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current.Load() != nil {
		return c.current.Load(), nil
	}
	gen, ix, err := c.assemble(ctx, s.Entries, s.Filter, Stats{})
	if err != nil {
		return nil, fmt.Errorf("restoring snapshot: %w", err)
	}
	for {
		last := c.lastID.Load()
		if last >= s.Generation || c.lastID.CompareAndSwap(last, s.Generation-1) {
			break
		}
	}
	c.ix = ix
	c.publish(gen)
	c.logger.Info("snapshot restored", "generation", gen.ID, "entries", gen.Stats.Entries, "created", s.Created)
	return gen, nil
}

func (c *Coordinator) save(gen *Generation) error {
	return c.cfg.Snapshots.Save(c.src.ID(), &snapshot.Snapshot{
		Generation: gen.ID,
		Created:    gen.CreatedAt,
		Entries:    gen.Entries.Entries(),
		Filter:     gen.Filter,
	})
}

// Close applies pending events and stops background work.
func (c *Coordinator) Close() {
	c.batcher.Stop()
	c.cache.Stop()
}
