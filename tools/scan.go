package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lexandro/volindex-mcp/search"
)

// ScanArgs defines the input parameters for the volindex_scan tool.
type ScanArgs struct {
	SourceID string `json:"sourceId" jsonschema:"Source to scan"`
}

// ScanHandler holds the dependencies for the scan tool.
type ScanHandler struct {
	Registry *search.Registry
	Logger   *slog.Logger
}

// Handle processes a volindex_scan request. Scanning reads the source
// without touching the published index.
func (h *ScanHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args ScanArgs) (*mcp.CallToolResult, any, error) {
	if args.SourceID == "" {
		h.Logger.Warn("volindex_scan called without sourceId")
		return errorResult("Error: sourceId parameter is required"), nil, nil
	}

	result, err := h.Registry.Scan(ctx, args.SourceID)
	if err != nil {
		h.Logger.Error("volindex_scan failed", "sourceId", args.SourceID, "error", err)
		return errorResult(fmt.Sprintf("Scan error: %v", err)), nil, nil
	}

	h.Logger.Info("volindex_scan",
		"sourceId", args.SourceID,
		"entries", len(result.Entries),
		"errors", result.Errors,
		"elapsed", result.Duration,
	)

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: FormatScanResult(result)}},
	}, nil, nil
}
