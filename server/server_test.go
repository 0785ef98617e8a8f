package server

import (
	"context"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexandro/volindex-mcp/search"
	"github.com/lexandro/volindex-mcp/tools"
)

func Test_Setup_RegistersTools(t *testing.T) {
	registry := search.NewRegistry(nil)
	t.Cleanup(registry.Close)

	srv := Setup(Handlers{
		Search:  &tools.SearchHandler{Registry: registry},
		Scan:    &tools.ScanHandler{Registry: registry},
		Build:   &tools.BuildIndexHandler{Registry: registry},
		Status:  &tools.StatusHandler{Registry: registry},
		Largest: &tools.LargestHandler{Registry: registry},
	})

	ctx := context.Background()
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := srv.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test", Version: "0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })

	list, err := session.ListTools(ctx, nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range list.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"volindex_search",
		"volindex_largest",
		"volindex_scan",
		"volindex_status",
		"volindex_build_index",
	}, names)
}
