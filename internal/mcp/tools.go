package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mvp-joe/cindex/internal/indexer"
	"github.com/mvp-joe/cindex/internal/symbols"
)

// Resolver answers symbol queries.
type Resolver interface {
	Autocomplete(prefix string) []string
	Declaration(name string) (symbols.Location, bool)
	Implementation(name string) (symbols.Location, bool)
	Calls(name string) ([]symbols.Occurrence, bool)
}

// StatsProvider reports index size.
type StatsProvider interface {
	Stats() symbols.Stats
}

// Indexer starts indexing jobs.
type Indexer interface {
	Start(ctx context.Context, req indexer.Request) (*indexer.Job, error)
}

// defaultAutocompleteLimit caps completion results unless the caller asks otherwise.
const defaultAutocompleteLimit = 100

type toolHandler = server.ToolHandlerFunc

// LocationResponse is returned by cindex_declaration and cindex_implementation.
type LocationResponse struct {
	Name     string            `json:"name"`
	Found    bool              `json:"found"`
	Location *symbols.Location `json:"location,omitempty"`
}

// CallsResponse is returned by cindex_calls.
type CallsResponse struct {
	Name  string               `json:"name"`
	Found bool                 `json:"found"`
	Calls []symbols.Occurrence `json:"calls"`
	Total int                  `json:"total"`
}

// AutocompleteResponse is returned by cindex_autocomplete.
type AutocompleteResponse struct {
	Prefix    string   `json:"prefix"`
	Names     []string `json:"names"`
	Total     int      `json:"total"`
	Truncated bool     `json:"truncated"`
}

// IndexResponse is returned by cindex_index.
type IndexResponse struct {
	Path   string            `json:"path"`
	Status string            `json:"status"` // "indexing", "busy", "complete" or "failed"
	JobID  string            `json:"job_id,omitempty"`
	Stats  *indexer.JobStats `json:"stats,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// AddDeclarationTool registers the cindex_declaration tool.
func AddDeclarationTool(s *server.MCPServer, resolver Resolver) {
	tool := mcp.NewTool(
		"cindex_declaration",
		mcp.WithDescription(`Find where a C/C++ function or type is declared.

For functions the header prototype is returned; a function without a
separate declaration falls back to its implementation. Types are looked up
only when no function has the name.`),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Exact function or type name")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, createLocationHandler(resolver.Declaration))
}

// AddImplementationTool registers the cindex_implementation tool.
func AddImplementationTool(s *server.MCPServer, resolver Resolver) {
	tool := mcp.NewTool(
		"cindex_implementation",
		mcp.WithDescription("Find the definition (function body) of a C/C++ function."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Exact function name")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, createLocationHandler(resolver.Implementation))
}

// AddCallsTool registers the cindex_calls tool.
func AddCallsTool(s *server.MCPServer, resolver Resolver) {
	tool := mcp.NewTool(
		"cindex_calls",
		mcp.WithDescription(`List the call-sites of a defined function, or the references of a declared type.

Each entry carries file, line, column and the source line. A function that
has never been defined reports found=false.`),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Exact function or type name")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, createCallsHandler(resolver))
}

// AddAutocompleteTool registers the cindex_autocomplete tool.
func AddAutocompleteTool(s *server.MCPServer, resolver Resolver) {
	tool := mcp.NewTool(
		"cindex_autocomplete",
		mcp.WithDescription("List function and type names starting with a prefix (case-sensitive)."),
		mcp.WithString("prefix",
			mcp.Description("Name prefix; empty lists every name")),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of names to return (default: 100)")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, createAutocompleteHandler(resolver))
}

// AddStatsTool registers the cindex_stats tool.
func AddStatsTool(s *server.MCPServer, stats StatsProvider) {
	tool := mcp.NewTool(
		"cindex_stats",
		mcp.WithDescription("Report how many functions, types and files the index holds."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, createStatsHandler(stats))
}

// AddIndexTool registers the cindex_index tool.
func AddIndexTool(s *server.MCPServer, idx Indexer) {
	tool := mcp.NewTool(
		"cindex_index",
		mcp.WithDescription(`Re-index a directory or file from scratch.

Only one indexing job runs at a time; while one is running the result is
status=busy. Set wait=true to block until the job completes.`),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Directory or file to index")),
		mcp.WithBoolean("wait",
			mcp.Description("Wait for the job to finish and return its stats")),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, createIndexHandler(idx))
}

func createLocationHandler(lookup func(string) (symbols.Location, bool)) toolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, errResult := requiredString(request, "name")
		if errResult != nil {
			return errResult, nil
		}

		response := LocationResponse{Name: name}
		if loc, ok := lookup(name); ok {
			response.Found = true
			response.Location = &loc
		}
		return jsonResult(response)
	}
}

func createCallsHandler(resolver Resolver) toolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, errResult := requiredString(request, "name")
		if errResult != nil {
			return errResult, nil
		}

		calls, found := resolver.Calls(name)
		if calls == nil {
			calls = []symbols.Occurrence{}
		}
		return jsonResult(CallsResponse{
			Name:  name,
			Found: found,
			Calls: calls,
			Total: len(calls),
		})
	}
}

func createAutocompleteHandler(resolver Resolver) toolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		argsMap, err := argumentsMap(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		prefix, err := parseStringArg(argsMap, "prefix", false)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		limit := parseIntArg(argsMap, "limit", defaultAutocompleteLimit)

		names := resolver.Autocomplete(prefix)
		response := AutocompleteResponse{Prefix: prefix, Total: len(names)}
		if len(names) > limit {
			names = names[:limit]
			response.Truncated = true
		}
		response.Names = names
		return jsonResult(response)
	}
}

func createStatsHandler(stats StatsProvider) toolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(stats.Stats())
	}
}

func createIndexHandler(idx Indexer) toolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, errResult := requiredString(request, "path")
		if errResult != nil {
			return errResult, nil
		}
		argsMap, _ := argumentsMap(request)
		wait := parseBoolArg(argsMap, "wait", false)

		response := IndexResponse{Path: path}
		job, err := idx.Start(ctx, indexer.Request{Root: path, Reset: true, Watch: true})
		if errors.Is(err, indexer.ErrBusy) {
			response.Status = "busy"
			return jsonResult(response)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to start indexing: %w", err)
		}

		response.Status = "indexing"
		response.JobID = job.ID
		if !wait {
			return jsonResult(response)
		}

		select {
		case <-job.Done():
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		stats, err := job.Wait()
		response.Stats = stats
		if err != nil {
			response.Status = "failed"
			response.Error = err.Error()
		} else {
			response.Status = "complete"
		}
		return jsonResult(response)
	}
}

// requiredString extracts a non-empty string argument, or returns the tool
// error result to send back.
func requiredString(request mcp.CallToolRequest, key string) (string, *mcp.CallToolResult) {
	argsMap, err := argumentsMap(request)
	if err != nil {
		return "", mcp.NewToolResultError(err.Error())
	}
	value, err := parseStringArg(argsMap, key, true)
	if err != nil {
		return "", mcp.NewToolResultError(err.Error())
	}
	return value, nil
}

// jsonResult marshals v as the tool's text result (mcp-go convention).
func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonData, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	return mcp.NewToolResultText(string(jsonData)), nil
}
