package mcp

import (
	"context"
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/server"
)

// MCPServer exposes the symbol index as MCP tools over stdio.
type MCPServer struct {
	mcp *server.MCPServer
}

// NewMCPServer registers every cindex tool. indexer may be nil, in which
// case the cindex_index tool is not offered.
func NewMCPServer(resolver Resolver, stats StatsProvider, indexer Indexer, version string) *MCPServer {
	mcpServer := server.NewMCPServer(
		"cindex",
		version,
		server.WithToolCapabilities(true),
	)

	AddDeclarationTool(mcpServer, resolver)
	AddImplementationTool(mcpServer, resolver)
	AddCallsTool(mcpServer, resolver)
	AddAutocompleteTool(mcpServer, resolver)
	AddStatsTool(mcpServer, stats)
	if indexer != nil {
		AddIndexTool(mcpServer, indexer)
	}

	return &MCPServer{mcp: mcpServer}
}

// Server returns the underlying mcp-go server.
func (s *MCPServer) Server() *server.MCPServer {
	return s.mcp
}

// Serve runs the MCP server on stdio and blocks until it stops or ctx ends.
func (s *MCPServer) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("[mcp] Starting MCP server on stdio...")
		if err := server.ServeStdio(s.mcp); err != nil {
			errCh <- fmt.Errorf("MCP server error: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
