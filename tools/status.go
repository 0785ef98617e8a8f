package tools

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/lexandro/volindex-mcp/category"
	"github.com/lexandro/volindex-mcp/feed"
	"github.com/lexandro/volindex-mcp/search"
)

// maxStatusWarnings caps the warnings listed per source.
const maxStatusWarnings = 5

// StatusArgs defines the input parameters for the volindex_status tool.
type StatusArgs struct {
	SourceID string `json:"sourceId,omitempty" jsonschema:"Only report this source (default: all sources)"`
}

// StatusHandler holds the dependencies for the status tool.
type StatusHandler struct {
	Registry  *search.Registry
	StartTime time.Time
	Logger    *slog.Logger
}

// Handle processes a volindex_status request.
func (h *StatusHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args StatusArgs) (*mcp.CallToolResult, any, error) {
	coordinators := h.Registry.Coordinators()
	if args.SourceID != "" {
		c, err := h.Registry.Get(args.SourceID)
		if err != nil {
			return errorResult(fmt.Sprintf("Error: %v", err)), nil, nil
		}
		coordinators = []*search.Coordinator{c}
	}
	uptime := time.Since(h.StartTime)

	// Memory stats
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	rss := residentMemory(ctx)

	h.Logger.Info("volindex_status",
		"sources", len(coordinators),
		"memory", memStats.Alloc,
		"rss", rss,
		"uptime", uptime,
	)

	var builder strings.Builder
	builder.WriteString("=== volindex-mcp Status ===\n\n")
	builder.WriteString(fmt.Sprintf("Uptime: %s\n", formatDuration(uptime)))
	builder.WriteString(fmt.Sprintf("Sources: %d\n", len(coordinators)))
	if rss > 0 {
		builder.WriteString(fmt.Sprintf("Memory usage: %s resident (heap: %s)\n",
			formatFileSize(rss),
			formatFileSize(memStats.HeapAlloc),
		))
	} else {
		builder.WriteString(fmt.Sprintf("Memory usage: %s (heap: %s)\n",
			formatFileSize(memStats.Alloc),
			formatFileSize(memStats.HeapAlloc),
		))
	}

	for _, c := range coordinators {
		builder.WriteString("\n")
		writeSourceStatus(ctx, &builder, c)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: builder.String()}},
	}, nil, nil
}

func writeSourceStatus(ctx context.Context, builder *strings.Builder, c *search.Coordinator) {
	builder.WriteString(fmt.Sprintf("--- %s (%s) ---\n", c.ID(), c.State()))

	if dir, ok := c.Source().(*feed.DirSource); ok {
		builder.WriteString(fmt.Sprintf("Root directory: %s\n", dir.Root()))
		if usage, err := disk.UsageWithContext(ctx, dir.Root()); err == nil {
			builder.WriteString(fmt.Sprintf("Volume: %s used of %s (%.1f%%), %s free\n",
				formatFileSize(usage.Used),
				formatFileSize(usage.Total),
				usage.UsedPercent,
				formatFileSize(usage.Free),
			))
		}
	}

	gen := c.Current()
	if gen == nil {
		builder.WriteString("No generation published yet.\n")
		return
	}
	stats := gen.Stats

	builder.WriteString(fmt.Sprintf("Generation: %d (built %s)\n", gen.ID, humanize.Time(gen.CreatedAt)))
	builder.WriteString(fmt.Sprintf("Entries: %s (%s files, %s directories)\n",
		humanize.Comma(int64(stats.Entries)),
		humanize.Comma(int64(stats.Files)),
		humanize.Comma(int64(stats.Dirs)),
	))
	builder.WriteString(fmt.Sprintf("Total size: %s\n", formatFileSize(stats.TotalSize)))
	builder.WriteString(fmt.Sprintf("Terms: %s\n", humanize.Comma(int64(stats.Terms))))
	if gen.Filter != nil {
		builder.WriteString(fmt.Sprintf("Filter: %s, %.1f%% full\n",
			formatFileSize(uint64(stats.FilterBytes)), stats.FilterFill*100))
	} else {
		builder.WriteString("Filter: unavailable (queries scan every entry)\n")
	}
	if stats.Incremental {
		builder.WriteString(fmt.Sprintf("Last update: incremental in %s\n", stats.BuildDuration.Round(time.Millisecond)))
	} else {
		builder.WriteString(fmt.Sprintf("Last build: scan %s, build %s, %s entries/s\n",
			stats.ScanDuration.Round(time.Millisecond),
			stats.BuildDuration.Round(time.Millisecond),
			humanize.Comma(int64(stats.EntriesPerSecond())),
		))
	}
	if stats.IngestErrors > 0 || stats.Duplicates > 0 {
		builder.WriteString(fmt.Sprintf("Skipped records: %d unreadable, %d duplicates\n", stats.IngestErrors, stats.Duplicates))
	}

	if len(gen.Warnings) > 0 {
		builder.WriteString(fmt.Sprintf("Warnings: %d\n", len(gen.Warnings)))
		for _, w := range gen.Warnings[:min(len(gen.Warnings), maxStatusWarnings)] {
			builder.WriteString(fmt.Sprintf("  %s\n", w))
		}
	}

	// Category breakdown
	totals := category.Breakdown(gen.Entries.Entries())
	if len(totals) > 0 {
		builder.WriteString("Categories:\n")
		for _, t := range totals {
			builder.WriteString(fmt.Sprintf("  %-12s %8s files  %s\n", t.Category, humanize.Comma(int64(t.Count)), formatFileSize(t.Size)))
		}
	}
}

// residentMemory returns the resident set size of this process, or 0 when
// the platform does not report it.
func residentMemory(ctx context.Context) uint64 {
	p, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return 0
	}
	info, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return 0
	}
	return info.RSS
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	totalSeconds := int(d.Seconds())
	if totalSeconds < 60 {
		return fmt.Sprintf("%ds", totalSeconds)
	}
	totalMinutes := totalSeconds / 60
	remainderSeconds := totalSeconds % 60
	if totalMinutes < 60 {
		return fmt.Sprintf("%dm%ds", totalMinutes, remainderSeconds)
	}
	hours := totalMinutes / 60
	remainderMinutes := totalMinutes % 60
	return fmt.Sprintf("%dh%dm", hours, remainderMinutes)
}
