package tools

import (
	"context"
	"strings"
	"testing"
)

func newTestSearchHandler(t *testing.T, build bool) *SearchHandler {
	t.Helper()
	return &SearchHandler{
		Registry: newTestRegistry(t, build),
		Logger:   testLogger(),
	}
}

func Test_SearchHandler_EmptyQuery(t *testing.T) {
	h := newTestSearchHandler(t, true)

	result, _, err := h.Handle(context.Background(), nil, SearchArgs{Query: ""})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected IsError=true for empty query")
	}

	text := resultText(t, result)
	if !strings.Contains(text, "query parameter is required") {
		t.Errorf("expected error message about empty query, got: %s", text)
	}
}

func Test_SearchHandler_NotReady(t *testing.T) {
	h := newTestSearchHandler(t, false)

	result, _, err := h.Handle(context.Background(), nil, SearchArgs{Query: "report"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected IsError=true before the first build")
	}
	if text := resultText(t, result); !strings.Contains(text, "not ready") {
		t.Errorf("expected not ready message, got: %s", text)
	}
}

func Test_SearchHandler_BasicSearch(t *testing.T) {
	h := newTestSearchHandler(t, true)

	result, _, err := h.Handle(context.Background(), nil, SearchArgs{Query: "report"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected success, got error result: %s", resultText(t, result))
	}

	text := resultText(t, result)
	if !strings.Contains(text, "Found 2 matches (exact)") {
		t.Errorf("expected header with count and strategy, got:\n%s", text)
	}
	if !strings.Contains(text, "[vol] docs/report.pdf") {
		t.Errorf("expected resolved path with source, got:\n%s", text)
	}
	if strings.Index(text, "docs/report.pdf") > strings.Index(text, "report_final.pdf") {
		t.Errorf("expected the shorter name to rank first, got:\n%s", text)
	}
}

func Test_SearchHandler_Options(t *testing.T) {
	h := newTestSearchHandler(t, true)

	result, _, err := h.Handle(context.Background(), nil, SearchArgs{Query: "report", PathGlob: "docs/**"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := resultText(t, result)
	if !strings.Contains(text, "docs/report.pdf") || strings.Contains(text, "report_final.pdf") {
		t.Errorf("expected only the docs match, got:\n%s", text)
	}

	result, _, err = h.Handle(context.Background(), nil, SearchArgs{Query: `notes movie`, UsePatternSet: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text = resultText(t, result)
	if !strings.Contains(text, "docs/notes.txt") || !strings.Contains(text, "movie.mkv") {
		t.Errorf("expected both pattern-set matches, got:\n%s", text)
	}
}

func Test_SearchHandler_NoResults(t *testing.T) {
	h := newTestSearchHandler(t, true)

	result, _, err := h.Handle(context.Background(), nil, SearchArgs{Query: "nonexistent"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatal("expected success (no error), got error result")
	}

	text := resultText(t, result)
	if !strings.Contains(text, "No matches found") {
		t.Errorf("expected 'No matches found', got:\n%s", text)
	}
}

func Test_SearchHandler_InvalidQuery(t *testing.T) {
	h := newTestSearchHandler(t, true)

	result, _, err := h.Handle(context.Background(), nil, SearchArgs{Query: "-report"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected IsError=true for a query without positive clauses")
	}
	if text := resultText(t, result); !strings.Contains(text, "Search error") {
		t.Errorf("expected search error, got: %s", text)
	}
}

func Test_SearchHandler_DefaultMaxResults(t *testing.T) {
	h := newTestSearchHandler(t, true)
	h.DefaultMaxResults = 1

	result, _, err := h.Handle(context.Background(), nil, SearchArgs{Query: "report"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text := resultText(t, result); !strings.Contains(text, "Found 1 matches") {
		t.Errorf("expected the default limit to apply, got:\n%s", text)
	}

	result, _, _ = h.Handle(context.Background(), nil, SearchArgs{Query: "report", MaxResults: 5})
	if text := resultText(t, result); !strings.Contains(text, "Found 2 matches") {
		t.Errorf("expected an explicit limit to win, got:\n%s", text)
	}
}
