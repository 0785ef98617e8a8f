package server

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lexandro/volindex-mcp/tools"
)

// Version is reported to MCP clients.
const Version = "0.1.0"

// Handlers groups the tool handlers served over MCP.
type Handlers struct {
	Search  *tools.SearchHandler
	Scan    *tools.ScanHandler
	Build   *tools.BuildIndexHandler
	Status  *tools.StatusHandler
	Largest *tools.LargestHandler
}

// Setup creates and configures the MCP server with all tool registrations.
func Setup(h Handlers) *mcp.Server {
	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "volindex-mcp",
			Version: Version,
		},
		&mcp.ServerOptions{
			Instructions: `This server indexes file and directory names of whole volumes in memory. Its tools answer name lookups across millions of entries in milliseconds, far faster than find, dir /s, or Glob.

ALWAYS prefer these tools over walking the filesystem:
- Use volindex_search to find files or folders by name, extension, or size
- Use volindex_largest to find what is taking up space
- Use volindex_status to see which sources are indexed and how fresh they are
- The index updates automatically when files change (via filesystem watcher and periodic sync)`,
		},
	)

	// Register volindex_search tool
	mcp.AddTool(mcpServer, &mcp.Tool{
		Name: "volindex_search",
		Description: `Search file and directory names across indexed volumes.

Query formats:
  - A single name fragment: substring match on names (e.g., "invoice_2023")
  - Words: ranked word search (e.g., "tax return 2023")
  - +word requires, -word excludes, "quoted phrase" matches adjacent words
  - prefix* and fuzzy~ (e.g., "repo*", "recieve~")
  - name:word, ext:pdf, size:>100MB, size:1KB..2MB
  - usePatternSet with a list of alternatives (e.g., "invoice receipt \"tax form\"")

Filtering:
  - pathGlob: glob on the full path (e.g., "**/photos/**/*.jpg")
  - extension: files with this extension only
  - sourceId: search a single source`,
	}, h.Search.Handle)

	// Register volindex_largest tool
	mcp.AddTool(mcpServer, &mcp.Tool{
		Name: "volindex_largest",
		Description: `List the largest files of a source, or every file with a given extension.

Examples:
  - sourceId "C", maxResults 50 - the 50 biggest files
  - sourceId "C", extension "iso" - all disk images`,
	}, h.Largest.Handle)

	// Register volindex_scan tool
	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "volindex_scan",
		Description: "Scan a source and report entry counts, total size, errors and throughput without changing the index.",
	}, h.Scan.Handle)

	// Register volindex_status tool
	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "volindex_status",
		Description: "Show index status per source: state, generation, entry counts, size, categories, disk usage, memory usage, and uptime.",
	}, h.Status.Handle)

	// Register volindex_build_index tool
	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "volindex_build_index",
		Description: "Force a full rebuild of one source or all sources. Searches keep using the previous index until the new one is ready.",
	}, h.Build.Handle)

	return mcpServer
}
