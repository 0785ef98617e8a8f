package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/lexandro/volindex-mcp/search"
)

func Test_ScanHandler_MissingSource(t *testing.T) {
	h := &ScanHandler{Registry: newTestRegistry(t, false), Logger: testLogger()}

	result, _, err := h.Handle(context.Background(), nil, ScanArgs{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected IsError=true without sourceId")
	}
}

func Test_ScanHandler_Success(t *testing.T) {
	registry := newTestRegistry(t, false)
	h := &ScanHandler{Registry: registry, Logger: testLogger()}

	result, _, err := h.Handle(context.Background(), nil, ScanArgs{SourceID: "vol"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected success, got error result: %s", resultText(t, result))
	}

	text := resultText(t, result)
	if !strings.Contains(text, "scanned vol: 5 entries (4 files, 1 dirs") {
		t.Errorf("expected scan summary, got:\n%s", text)
	}

	// A scan alone publishes nothing
	c, _ := registry.Get("vol")
	if c.State() != search.StateIdle {
		t.Errorf("expected idle after scan, got %s", c.State())
	}
}
