package tools

import (
	"strings"
	"testing"
	"time"

	"github.com/lexandro/volindex-mcp/entry"
	"github.com/lexandro/volindex-mcp/feed"
	"github.com/lexandro/volindex-mcp/search"
)

// --- formatFileSize ---

func Test_FormatFileSize_Bytes(t *testing.T) {
	got := formatFileSize(500)
	if got != "500 B" {
		t.Errorf("expected '500 B', got '%s'", got)
	}
}

func Test_FormatFileSize_Kilobytes(t *testing.T) {
	got := formatFileSize(2048)
	if got != "2.0 KiB" {
		t.Errorf("expected '2.0 KiB', got '%s'", got)
	}
}

func Test_FormatFileSize_Megabytes(t *testing.T) {
	got := formatFileSize(3 * 1024 * 1024)
	if got != "3.0 MiB" {
		t.Errorf("expected '3.0 MiB', got '%s'", got)
	}
}

// --- FormatSearchResults ---

func Test_FormatSearchResults_NoMatches(t *testing.T) {
	got := FormatSearchResults(nil)
	if got != "No matches found." {
		t.Errorf("expected 'No matches found.', got '%s'", got)
	}
}

func Test_FormatSearchResults_WithMatches(t *testing.T) {
	results := []search.Result{
		{
			Source:   "C",
			Path:     "docs/report.pdf",
			Name:     "report.pdf",
			Size:     2048,
			Modified: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
			Score:    0.6,
			Strategy: search.StrategyExact,
		},
		{
			Source:      "C",
			Path:        "reports",
			Name:        "reports",
			IsDirectory: true,
			Score:       0.5,
			Strategy:    search.StrategyExact,
		},
	}

	got := FormatSearchResults(results)

	if !strings.Contains(got, "Found 2 matches (exact)") {
		t.Errorf("expected header with count and strategy, got:\n%s", got)
	}
	if !strings.Contains(got, "[C] docs/report.pdf  (2.0 KiB, score 0.60, modified 2024-03-01)") {
		t.Errorf("expected file line with metadata, got:\n%s", got)
	}
	if !strings.Contains(got, "[C] reports  (dir, score 0.50)") {
		t.Errorf("expected directory line without modified date, got:\n%s", got)
	}
}

// --- FormatFileResults ---

func Test_FormatFileResults_Empty(t *testing.T) {
	got := FormatFileResults(nil, false)
	if got != "No files matched." {
		t.Errorf("expected 'No files matched.', got '%s'", got)
	}
}

func Test_FormatFileResults_WithMetadata(t *testing.T) {
	results := []search.Result{
		{Path: "media/holiday.mkv", Name: "holiday.mkv", Size: 3 * 1024 * 1024},
	}

	got := FormatFileResults(results, false)

	if !strings.Contains(got, "media/holiday.mkv") {
		t.Errorf("expected file path, got:\n%s", got)
	}
	if !strings.Contains(got, "video") {
		t.Errorf("expected category, got:\n%s", got)
	}
	if !strings.Contains(got, "3.0 MiB") {
		t.Errorf("expected formatted size, got:\n%s", got)
	}
}

func Test_FormatFileResults_NameOnly(t *testing.T) {
	results := []search.Result{
		{Path: "media/holiday.mkv", Name: "holiday.mkv", Size: 3 * 1024 * 1024},
	}

	got := FormatFileResults(results, true)

	if !strings.Contains(got, "media/holiday.mkv") {
		t.Errorf("expected file path, got:\n%s", got)
	}
	// nameOnly should NOT include metadata
	if strings.Contains(got, "MiB") || strings.Contains(got, "video") {
		t.Errorf("nameOnly should not include metadata, got:\n%s", got)
	}
}

// --- FormatScanResult ---

func Test_FormatScanResult(t *testing.T) {
	got := FormatScanResult(feed.ScanResult{
		SourceID:  "D",
		Entries:   make([]entry.Entry, 1500),
		FileCount: 1200,
		DirCount:  300,
		TotalSize: 1024,
		Errors:    2,
		Duration:  1500 * time.Millisecond,
	})

	for _, want := range []string{"scanned D", "1,500 entries", "1,200 files", "300 dirs", "1.0 KiB", "1.5s", "1,000 entries/s", "2 errors"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in output, got:\n%s", want, got)
		}
	}
}
