package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lexandro/volindex-mcp/search"
)

// SearchArgs defines the input parameters for the volindex_search tool.
type SearchArgs struct {
	Query         string `json:"query" jsonschema:"Search query. A bare word or name fragment is matched as a substring; otherwise word queries support +required -excluded \"phrases\" prefix* fuzzy~ name: ext: and size:>10MB clauses"`
	CaseSensitive bool   `json:"caseSensitive,omitempty" jsonschema:"Match case exactly (substring and pattern-set queries only)"`
	UsePatternSet bool   `json:"usePatternSet,omitempty" jsonschema:"Treat the query as a list of alternatives (shell quoting) and match any of them"`
	MaxResults    int    `json:"maxResults,omitempty" jsonschema:"Maximum number of results to return (default 50)"`
	PathGlob      string `json:"pathGlob,omitempty" jsonschema:"Optional glob filter on the full path, or on the name when it has no slash (e.g. **/photos/*.jpg)"`
	Extension     string `json:"extension,omitempty" jsonschema:"Keep only files with this extension (e.g. pdf)"`
	SourceID      string `json:"sourceId,omitempty" jsonschema:"Search only this source (default: all indexed sources)"`
}

// SearchHandler holds the dependencies for the search tool.
type SearchHandler struct {
	Registry          *search.Registry
	DefaultMaxResults int // used when the request leaves maxResults unset
	Logger            *slog.Logger
}

// Handle processes a volindex_search request.
func (h *SearchHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args SearchArgs) (*mcp.CallToolResult, any, error) {
	start := time.Now()

	if args.Query == "" {
		h.Logger.Warn("volindex_search called with empty query")
		return errorResult("Error: query parameter is required"), nil, nil
	}

	maxResults := args.MaxResults
	if maxResults <= 0 {
		maxResults = h.DefaultMaxResults
	}

	results, err := h.Registry.Search(ctx, args.Query, search.Options{
		CaseSensitive: args.CaseSensitive,
		UsePatternSet: args.UsePatternSet,
		MaxResults:    maxResults,
		PathGlob:      args.PathGlob,
		Extension:     args.Extension,
		SourceID:      args.SourceID,
	})
	if err != nil {
		if errors.Is(err, search.ErrNotReady) {
			h.Logger.Info("volindex_search before index ready", "query", args.Query)
			return errorResult("Index not ready yet: run volindex_build_index or wait for the initial build"), nil, nil
		}
		h.Logger.Error("volindex_search failed", "query", args.Query, "error", err)
		return errorResult(fmt.Sprintf("Search error: %v", err)), nil, nil
	}

	elapsed := time.Since(start)
	h.Logger.Info("volindex_search",
		"query", args.Query,
		"pathGlob", args.PathGlob,
		"extension", args.Extension,
		"sourceId", args.SourceID,
		"results", len(results),
		"elapsed", elapsed,
	)

	output := FormatSearchResults(results)

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: output}},
	}, nil, nil
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}
