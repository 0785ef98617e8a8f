package tools

import (
	"context"
	"strings"
	"testing"
)

func Test_LargestHandler_NotReady(t *testing.T) {
	h := &LargestHandler{Registry: newTestRegistry(t, false), Logger: testLogger()}

	result, _, err := h.Handle(context.Background(), nil, LargestArgs{SourceID: "vol"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected IsError=true before the first build")
	}
}

func Test_LargestHandler_Largest(t *testing.T) {
	h := &LargestHandler{Registry: newTestRegistry(t, true), Logger: testLogger()}

	result, _, err := h.Handle(context.Background(), nil, LargestArgs{SourceID: "vol", MaxResults: 2, NameOnly: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := resultText(t, result)
	if !strings.Contains(text, "Found 2 files") {
		t.Errorf("expected 2 files, got:\n%s", text)
	}
	if strings.Index(text, "movie.mkv") > strings.Index(text, "report_final.pdf") {
		t.Errorf("expected largest first, got:\n%s", text)
	}
	if strings.Contains(text, "docs/report.pdf") {
		t.Errorf("expected limit to cut smaller files, got:\n%s", text)
	}
}

func Test_LargestHandler_ByExtension(t *testing.T) {
	h := &LargestHandler{Registry: newTestRegistry(t, true), Logger: testLogger()}

	result, _, err := h.Handle(context.Background(), nil, LargestArgs{SourceID: "vol", Extension: ".PDF"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := resultText(t, result)
	if !strings.Contains(text, "docs/report.pdf") || !strings.Contains(text, "report_final.pdf") {
		t.Errorf("expected both pdf files, got:\n%s", text)
	}
	if strings.Contains(text, "movie.mkv") {
		t.Errorf("expected only pdf files, got:\n%s", text)
	}
}
