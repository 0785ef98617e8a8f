package tools

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lexandro/volindex-mcp/entry"
	"github.com/lexandro/volindex-mcp/feed"
	"github.com/lexandro/volindex-mcp/search"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEntries() []entry.Entry {
	return []entry.Entry{
		{RecordID: 1, Name: "docs", IsDirectory: true},
		{RecordID: 2, ParentID: 1, Name: "report.pdf", Size: 2048},
		{RecordID: 3, ParentID: 1, Name: "notes.txt", Size: 10},
		{RecordID: 4, Name: "movie.mkv", Size: 3 * 1024 * 1024},
		{RecordID: 5, Name: "report_final.pdf", Size: 4096},
	}
}

// newTestRegistry returns a registry with one source "vol". When build is
// true the first generation is published before returning.
func newTestRegistry(t *testing.T, build bool) *search.Registry {
	t.Helper()
	r := search.NewRegistry(testLogger())
	t.Cleanup(r.Close)

	c := search.NewCoordinator(&feed.SliceSource{SourceID: "vol", Entries: testEntries()}, search.Config{Logger: testLogger()})
	if err := r.Add(c); err != nil {
		t.Fatalf("adding coordinator: %v", err)
	}
	if build {
		if _, err := r.BuildIndex(context.Background(), "vol"); err != nil {
			t.Fatalf("building index: %v", err)
		}
	}
	return r
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("expected content in result")
	}
	return result.Content[0].(*mcp.TextContent).Text
}
