package mcp

import (
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// argumentsMap returns the request arguments. A request without arguments
// yields an empty map.
func argumentsMap(request mcp.CallToolRequest) (map[string]interface{}, error) {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}, nil
	}
	argsMap, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid arguments format")
	}
	return argsMap, nil
}

// parseStringArg extracts a string argument from an MCP arguments map.
// Returns an error if the argument is required but missing or invalid.
func parseStringArg(argsMap map[string]interface{}, key string, required bool) (string, error) {
	val, ok := argsMap[key]
	if !ok {
		if required {
			return "", fmt.Errorf("%s parameter is required", key)
		}
		return "", nil
	}

	str, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string", key)
	}

	if required && str == "" {
		return "", fmt.Errorf("%s cannot be empty", key)
	}

	return str, nil
}

// parseIntArg extracts an integer argument from an MCP arguments map.
// MCP sends numbers as float64. Returns defaultVal if the argument is
// missing, invalid or not positive.
func parseIntArg(argsMap map[string]interface{}, key string, defaultVal int) int {
	f, ok := argsMap[key].(float64)
	if !ok || f <= 0 {
		return defaultVal
	}
	return int(f)
}

// parseBoolArg extracts a boolean argument, returning defaultVal if it is
// missing or not a bool.
func parseBoolArg(argsMap map[string]interface{}, key string, defaultVal bool) bool {
	b, ok := argsMap[key].(bool)
	if !ok {
		return defaultVal
	}
	return b
}
