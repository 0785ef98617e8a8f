package tools

import (
	"context"
	"strings"
	"testing"
	"time"
)

// --- formatDuration ---

func Test_FormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{"Seconds_zero", 0, "0s"},
		{"Seconds_30", 30 * time.Second, "30s"},
		{"Seconds_59", 59 * time.Second, "59s"},
		{"Minutes_1m0s", 60 * time.Second, "1m0s"},
		{"Minutes_5m30s", 5*time.Minute + 30*time.Second, "5m30s"},
		{"Hours_1h30m", 90 * time.Minute, "1h30m"},
		{"Hours_2h0m", 2 * time.Hour, "2h0m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatDuration(tt.duration)
			if got != tt.expected {
				t.Errorf("formatDuration(%v) = %q, want %q", tt.duration, got, tt.expected)
			}
		})
	}
}

// --- StatusHandler ---

func newTestStatusHandler(t *testing.T, build bool) *StatusHandler {
	t.Helper()
	return &StatusHandler{
		Registry:  newTestRegistry(t, build),
		StartTime: time.Now(),
		Logger:    testLogger(),
	}
}

func Test_StatusHandler_BeforeBuild(t *testing.T) {
	h := newTestStatusHandler(t, false)

	result, _, err := h.Handle(context.Background(), nil, StatusArgs{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatal("expected success, got error result")
	}

	text := resultText(t, result)
	if !strings.Contains(text, "volindex-mcp Status") {
		t.Errorf("expected status header, got:\n%s", text)
	}
	if !strings.Contains(text, "--- vol (idle) ---") {
		t.Errorf("expected idle source, got:\n%s", text)
	}
	if !strings.Contains(text, "No generation published yet.") {
		t.Errorf("expected missing generation notice, got:\n%s", text)
	}
}

func Test_StatusHandler_WithGeneration(t *testing.T) {
	h := newTestStatusHandler(t, true)

	result, _, err := h.Handle(context.Background(), nil, StatusArgs{SourceID: "vol"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	text := resultText(t, result)
	for _, want := range []string{
		"--- vol (ready) ---",
		"Generation: 1",
		"Entries: 5 (4 files, 1 directories)",
		"Categories:",
		"video",
		"document",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in status, got:\n%s", want, text)
		}
	}
	// video holds the most bytes
	if strings.Index(text, "video") > strings.Index(text, "document") {
		t.Errorf("expected categories ordered by size, got:\n%s", text)
	}
}

func Test_StatusHandler_UnknownSource(t *testing.T) {
	h := newTestStatusHandler(t, false)

	result, _, err := h.Handle(context.Background(), nil, StatusArgs{SourceID: "nope"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected IsError=true for unknown source")
	}
}
