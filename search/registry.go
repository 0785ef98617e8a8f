package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/lexandro/volindex-mcp/feed"
	"github.com/lexandro/volindex-mcp/index"
)

// Registry maps source ids to their coordinators.
type Registry struct {
	mu     sync.RWMutex
	coords map[string]*Coordinator
	order  []string
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{coords: make(map[string]*Coordinator), logger: logger}
}

// Add registers a coordinator under its source id.
func (r *Registry) Add(c *Coordinator) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.coords[c.ID()]; ok {
		return fmt.Errorf("source %q already registered", c.ID())
	}
	r.coords[c.ID()] = c
	r.order = append(r.order, c.ID())
	return nil
}

// Get returns the coordinator of a source.
func (r *Registry) Get(sourceID string) (*Coordinator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.coords[sourceID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", feed.ErrUnknownSource, sourceID)
	}
	return c, nil
}

// Coordinators returns all coordinators in registration order.
func (r *Registry) Coordinators() []*Coordinator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Coordinator, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.coords[id])
	}
	return out
}

// Scan runs a full scan of one source without building.
func (r *Registry) Scan(ctx context.Context, sourceID string) (feed.ScanResult, error) {
	c, err := r.Get(sourceID)
	if err != nil {
		return feed.ScanResult{}, err
	}
	return c.Scan(ctx)
}

// BuildIndex rebuilds one source, or every source when sourceID is empty.
// Sources are built concurrently; the first failure is returned after all
// builds finish.
func (r *Registry) BuildIndex(ctx context.Context, sourceID string) ([]*Generation, error) {
	coords := r.Coordinators()
	if sourceID != "" {
		c, err := r.Get(sourceID)
		if err != nil {
			return nil, err
		}
		coords = []*Coordinator{c}
	}

	gens := make([]*Generation, len(coords))
	var g errgroup.Group
	for i, c := range coords {
		g.Go(func() error {
			gen, err := c.Build(ctx)
			if err != nil {
				r.logger.Error("build failed", "source", c.ID(), "error", err)
				return err
			}
			gens[i] = gen
			return nil
		})
	}
	err := g.Wait()
	return slices.DeleteFunc(gens, func(g *Generation) bool { return g == nil }), err
}

// Search queries one source when opts.SourceID is set, otherwise every
// source with a published generation, and merges the results. Invalid
// queries fail the whole search; a source that is not ready is skipped.
func (r *Registry) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	if opts.SourceID != "" {
		c, err := r.Get(opts.SourceID)
		if err != nil {
			return nil, err
		}
		return c.Search(ctx, query, opts)
	}

	var ready []*Coordinator
	for _, c := range r.Coordinators() {
		if c.Current() != nil {
			ready = append(ready, c)
		}
	}
	if len(ready) == 0 {
		return nil, ErrNotReady
	}

	parts := make([][]Result, len(ready))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range ready {
		g.Go(func() error {
			res, err := c.Search(gctx, query, opts)
			if errors.Is(err, ErrNotReady) {
				return nil
			}
			parts[i] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, index.ErrInvalidQuery) || errors.Is(err, ErrEmptyQuery) {
			return nil, err
		}
		return nil, fmt.Errorf("searching: %w", err)
	}

	merged := slices.Concat(parts...)
	slices.SortStableFunc(merged, compareResults)
	if limit := opts.limit(); len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

// Close stops background work of every coordinator.
func (r *Registry) Close() {
	for _, c := range r.Coordinators() {
		c.Close()
	}
}
