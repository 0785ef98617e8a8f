package tools

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/lexandro/volindex-mcp/category"
	"github.com/lexandro/volindex-mcp/feed"
	"github.com/lexandro/volindex-mcp/search"
)

// FormatSearchResults formats search results as human-readable text, one
// line per hit with source, size and score.
func FormatSearchResults(results []search.Result) string {
	if len(results) == 0 {
		return "No matches found."
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("Found %d matches (%s):\n\n", len(results), results[0].Strategy))

	for _, result := range results {
		kind := formatFileSize(result.Size)
		if result.IsDirectory {
			kind = "dir"
		}
		builder.WriteString(fmt.Sprintf("  [%s] %s  (%s, score %.2f%s)\n",
			result.Source,
			result.Path,
			kind,
			result.Score,
			formatModified(result.Modified),
		))
	}

	return builder.String()
}

// FormatFileResults formats a plain file listing, largest first as given.
func FormatFileResults(results []search.Result, nameOnly bool) string {
	if len(results) == 0 {
		return "No files matched."
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("Found %d files:\n\n", len(results)))

	for _, result := range results {
		if nameOnly {
			builder.WriteString(result.Path)
			builder.WriteString("\n")
			continue
		}
		builder.WriteString(fmt.Sprintf("  %s  (%s, %s%s)\n",
			result.Path,
			category.Detect(result.Name),
			formatFileSize(result.Size),
			formatModified(result.Modified),
		))
	}

	return builder.String()
}

// FormatScanResult summarizes a full scan.
func FormatScanResult(result feed.ScanResult) string {
	return fmt.Sprintf("scanned %s: %s entries (%s files, %s dirs, %s) in %s, %s entries/s, %d errors",
		result.SourceID,
		humanize.Comma(int64(len(result.Entries))),
		humanize.Comma(int64(result.FileCount)),
		humanize.Comma(int64(result.DirCount)),
		formatFileSize(result.TotalSize),
		result.Duration.Round(time.Millisecond),
		humanize.Comma(int64(result.EntriesPerSecond())),
		result.Errors,
	)
}

// FormatGeneration summarizes a published generation.
func FormatGeneration(gen *search.Generation) string {
	stats := gen.Stats
	return fmt.Sprintf("%s generation %d: %s entries (%s files, %s dirs, %s), %s terms, filter %s, built in %s",
		gen.Source,
		gen.ID,
		humanize.Comma(int64(stats.Entries)),
		humanize.Comma(int64(stats.Files)),
		humanize.Comma(int64(stats.Dirs)),
		formatFileSize(stats.TotalSize),
		humanize.Comma(int64(stats.Terms)),
		formatFileSize(uint64(stats.FilterBytes)),
		stats.BuildDuration.Round(time.Millisecond),
	)
}

// formatFileSize converts bytes to a human-readable string.
func formatFileSize(bytes uint64) string {
	return humanize.IBytes(bytes)
}

func formatModified(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return ", modified " + t.UTC().Format(time.DateOnly)
}
