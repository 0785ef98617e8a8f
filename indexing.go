package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/afero"

	"github.com/lexandro/volindex-mcp/feed"
	"github.com/lexandro/volindex-mcp/search"
	"github.com/lexandro/volindex-mcp/snapshot"
	"github.com/lexandro/volindex-mcp/watcher"
)

// openRegistry creates a directory source and coordinator per configured
// source and registers them.
func openRegistry(cfg Config, fs afero.Fs, logger *slog.Logger) (*search.Registry, []*feed.DirSource, error) {
	if len(cfg.Sources) == 0 {
		return nil, nil, errNoSources
	}

	registry := search.NewRegistry(logger)
	snapshots := cfg.snapshotStore(fs)
	sources := make([]*feed.DirSource, 0, len(cfg.Sources))

	for _, sc := range cfg.Sources {
		source := feed.NewDirSource(sc.ID, sc.Root, feed.DirOptions{
			Fs:      fs,
			Exclude: sc.Exclude,
			Logger:  logger.With("source", sc.ID),
		})
		coordCfg := cfg.coordinatorConfig(snapshots)
		coordCfg.Logger = logger.With("source", sc.ID)

		if err := registry.Add(search.NewCoordinator(source, coordCfg)); err != nil {
			registry.Close()
			return nil, nil, fmt.Errorf("registering source %s: %w", sc.ID, err)
		}
		sources = append(sources, source)
	}
	return registry, sources, nil
}

// restoreSnapshots publishes the persisted generation of every source that
// has one. Missing snapshots are expected on first start.
func restoreSnapshots(ctx context.Context, registry *search.Registry, logger *slog.Logger) {
	for _, c := range registry.Coordinators() {
		gen, err := c.LoadSnapshot(ctx)
		switch {
		case errors.Is(err, snapshot.ErrNotFound):
			logger.Debug("no snapshot", "source", c.ID())
		case err != nil:
			logger.Warn("ignoring unreadable snapshot", "source", c.ID(), "error", err)
		default:
			logger.Info("serving snapshot until rebuild completes",
				"source", c.ID(),
				"generation", gen.ID,
				"entries", gen.Stats.Entries,
			)
		}
	}
}

// startBuilds rebuilds every source in the background and logs the outcome.
// The returned tasks can be cancelled on shutdown.
func startBuilds(ctx context.Context, registry *search.Registry, logger *slog.Logger) []*search.BuildTask {
	coords := registry.Coordinators()
	tasks := make([]*search.BuildTask, 0, len(coords))
	for _, c := range coords {
		task := c.BuildAsync(ctx)
		tasks = append(tasks, task)
		go func() {
			gen, err := task.Wait()
			if err != nil {
				logger.Error("initial build failed", "source", c.ID(), "error", err)
				return
			}
			logger.Info("initial build complete",
				"source", c.ID(),
				"generation", gen.ID,
				"entries", gen.Stats.Entries,
				"totalSize", gen.Stats.TotalSize,
				"duration", gen.Stats.ScanDuration+gen.Stats.BuildDuration,
			)
		}()
	}
	return tasks
}

// startWatchers attaches a file system watcher to every source. Events are
// batched by the source's coordinator. A source whose watcher cannot start
// keeps working without live updates.
func startWatchers(registry *search.Registry, sources []*feed.DirSource, logger *slog.Logger) []*watcher.Watcher {
	var watchers []*watcher.Watcher
	for _, source := range sources {
		c, err := registry.Get(source.ID())
		if err != nil {
			continue
		}
		w, err := watcher.NewWatcher(source, c.Enqueue, c, logger)
		if err != nil {
			logger.Warn("failed to start file watcher, continuing without live updates",
				"source", source.ID(),
				"error", err,
			)
			continue
		}
		go w.Start()
		watchers = append(watchers, w)
	}
	return watchers
}
