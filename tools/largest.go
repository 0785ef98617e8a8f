package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lexandro/volindex-mcp/search"
)

const defaultLargestCount = 20

// LargestArgs defines the input parameters for the volindex_largest tool.
type LargestArgs struct {
	SourceID   string `json:"sourceId" jsonschema:"Source to inspect"`
	Extension  string `json:"extension,omitempty" jsonschema:"List all files with this extension instead of the largest files (e.g. iso)"`
	MaxResults int    `json:"maxResults,omitempty" jsonschema:"Number of files to return (default 20)"`
	NameOnly   bool   `json:"nameOnly,omitempty" jsonschema:"If true return only paths without metadata"`
}

// LargestHandler holds the dependencies for the largest files tool.
type LargestHandler struct {
	Registry *search.Registry
	Logger   *slog.Logger
}

// Handle processes a volindex_largest request.
func (h *LargestHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args LargestArgs) (*mcp.CallToolResult, any, error) {
	start := time.Now()

	if args.SourceID == "" {
		h.Logger.Warn("volindex_largest called without sourceId")
		return errorResult("Error: sourceId parameter is required"), nil, nil
	}

	coordinator, err := h.Registry.Get(args.SourceID)
	if err != nil {
		return errorResult(fmt.Sprintf("Error: %v", err)), nil, nil
	}
	gen := coordinator.Current()
	if gen == nil {
		return errorResult(fmt.Sprintf("Index not ready yet for source %s", args.SourceID)), nil, nil
	}

	limit := args.MaxResults
	if limit <= 0 {
		limit = defaultLargestCount
	}
	limit = min(limit, search.MaxResultsLimit)

	var results []search.Result
	if args.Extension != "" {
		results = gen.FilesByExtension(args.Extension)
		if len(results) > limit {
			results = results[:limit]
		}
	} else {
		results = gen.LargestFiles(limit)
	}

	h.Logger.Info("volindex_largest",
		"sourceId", args.SourceID,
		"extension", args.Extension,
		"results", len(results),
		"elapsed", time.Since(start),
	)

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: FormatFileResults(results, args.NameOnly)}},
	}, nil, nil
}
