package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lexandro/volindex-mcp/search"
)

// BuildIndexArgs defines the input parameters for the volindex_build_index tool.
type BuildIndexArgs struct {
	SourceID string `json:"sourceId,omitempty" jsonschema:"Source to rebuild (default: all sources)"`
}

// BuildIndexHandler holds the dependencies for the build tool.
type BuildIndexHandler struct {
	Registry *search.Registry
	Logger   *slog.Logger
}

// Handle processes a volindex_build_index request. The previous generation
// keeps serving searches until the new one is published.
func (h *BuildIndexHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args BuildIndexArgs) (*mcp.CallToolResult, any, error) {
	start := time.Now()
	h.Logger.Info("volindex_build_index started", "sourceId", args.SourceID)

	gens, err := h.Registry.BuildIndex(ctx, args.SourceID)
	if err != nil {
		h.Logger.Error("volindex_build_index failed", "sourceId", args.SourceID, "built", len(gens), "error", err)
		text := fmt.Sprintf("Build error: %v", err)
		if len(gens) > 0 {
			text += "\n\nBuilt before the failure:\n" + formatGenerations(gens)
		}
		return errorResult(text), nil, nil
	}

	elapsed := time.Since(start).Round(time.Millisecond)
	h.Logger.Info("volindex_build_index complete",
		"sources", len(gens),
		"elapsed", elapsed,
	)

	output := fmt.Sprintf("Build complete in %s:\n%s", elapsed, formatGenerations(gens))

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: output}},
	}, nil, nil
}

func formatGenerations(gens []*search.Generation) string {
	var builder strings.Builder
	for _, gen := range gens {
		builder.WriteString("  ")
		builder.WriteString(FormatGeneration(gen))
		builder.WriteString("\n")
	}
	return builder.String()
}
