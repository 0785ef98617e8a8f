package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lexandro/volindex-mcp/feed"
	"github.com/lexandro/volindex-mcp/search"
)

// SyncResult holds the outcome of a single sync verification run.
type SyncResult struct {
	MissingEntries  int // entries on disk but not in the index
	StaleEntries    int // entries in the index but not on disk
	ModifiedEntries int // entries whose metadata differs
	Duration        time.Duration
}

// Total returns the number of discrepancies found.
func (r SyncResult) Total() int {
	return r.MissingEntries + r.StaleEntries + r.ModifiedEntries
}

// runPeriodicSync starts a background loop that verifies index consistency at
// the given interval. It runs until ctx is done.
func runPeriodicSync(ctx context.Context, interval time.Duration, registry *search.Registry, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("periodic sync started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			logger.Info("periodic sync stopped")
			return
		case <-ticker.C:
			for _, c := range registry.Coordinators() {
				result, err := performSyncVerification(ctx, c)
				if err != nil {
					logger.Warn("sync verification failed", "source", c.ID(), "error", err)
					continue
				}
				if result.Total() > 0 {
					logger.Info("sync verification complete",
						"source", c.ID(),
						"missing", result.MissingEntries,
						"stale", result.StaleEntries,
						"modified", result.ModifiedEntries,
						"duration", result.Duration,
					)
				} else {
					logger.Debug("sync verification complete, index is in sync", "source", c.ID(), "duration", result.Duration)
				}
			}
		}
	}
}

// performSyncVerification rescans the source of c, compares it with the
// current generation and applies the differences as change events. Sources
// without a published generation are skipped.
func performSyncVerification(ctx context.Context, c *search.Coordinator) (SyncResult, error) {
	start := time.Now()
	var result SyncResult

	gen := c.Current()
	if gen == nil {
		return result, nil
	}

	scan, err := c.Scan(ctx)
	if err != nil {
		return result, fmt.Errorf("rescanning: %w", err)
	}

	events := feed.Diff(gen.Entries.Entries(), scan.Entries)
	for _, ev := range events {
		switch {
		case ev.Op == feed.OpDelete:
			result.StaleEntries++
		case hasRecord(gen, ev.RecordID):
			result.ModifiedEntries++
		default:
			result.MissingEntries++
		}
	}

	if len(events) > 0 {
		if _, err := c.Apply(ctx, events); err != nil {
			return result, fmt.Errorf("applying %d changes: %w", len(events), err)
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}

func hasRecord(gen *search.Generation, id uint64) bool {
	_, ok := gen.Entries.Index(id)
	return ok
}
