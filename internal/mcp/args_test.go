package mcp

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgumentsMap(t *testing.T) {
	t.Parallel()

	t.Run("nil arguments", func(t *testing.T) {
		argsMap, err := argumentsMap(mcp.CallToolRequest{})
		require.NoError(t, err)
		assert.Empty(t, argsMap)
	})

	t.Run("map arguments", func(t *testing.T) {
		request := mcp.CallToolRequest{
			Params: mcp.CallToolParams{
				Arguments: map[string]interface{}{"name": "foo"},
			},
		}
		argsMap, err := argumentsMap(request)
		require.NoError(t, err)
		assert.Equal(t, "foo", argsMap["name"])
	})

	t.Run("malformed arguments", func(t *testing.T) {
		request := mcp.CallToolRequest{
			Params: mcp.CallToolParams{Arguments: "not-a-map"},
		}
		_, err := argumentsMap(request)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid arguments format")
	})
}

func TestParseStringArg(t *testing.T) {
	t.Parallel()

	t.Run("required string present", func(t *testing.T) {
		argsMap := map[string]interface{}{
			"name": "foo",
		}
		result, err := parseStringArg(argsMap, "name", true)
		require.NoError(t, err)
		assert.Equal(t, "foo", result)
	})

	t.Run("required string missing", func(t *testing.T) {
		argsMap := map[string]interface{}{}
		result, err := parseStringArg(argsMap, "name", true)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "name parameter is required")
		assert.Empty(t, result)
	})

	t.Run("required string empty", func(t *testing.T) {
		argsMap := map[string]interface{}{
			"name": "",
		}
		result, err := parseStringArg(argsMap, "name", true)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "name cannot be empty")
		assert.Empty(t, result)
	})

	t.Run("optional string missing", func(t *testing.T) {
		result, err := parseStringArg(map[string]interface{}{}, "prefix", false)
		require.NoError(t, err)
		assert.Empty(t, result)
	})

	t.Run("wrong type", func(t *testing.T) {
		argsMap := map[string]interface{}{
			"name": 42,
		}
		result, err := parseStringArg(argsMap, "name", true)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "name must be a string")
		assert.Empty(t, result)
	})
}

func TestParseIntArg(t *testing.T) {
	t.Parallel()

	t.Run("int present", func(t *testing.T) {
		argsMap := map[string]interface{}{
			"limit": float64(42), // MCP sends numbers as float64
		}
		assert.Equal(t, 42, parseIntArg(argsMap, "limit", 10))
	})

	t.Run("int missing", func(t *testing.T) {
		assert.Equal(t, 10, parseIntArg(map[string]interface{}{}, "limit", 10))
	})

	t.Run("wrong type", func(t *testing.T) {
		argsMap := map[string]interface{}{
			"limit": "not-a-number",
		}
		assert.Equal(t, 10, parseIntArg(argsMap, "limit", 10))
	})

	t.Run("zero falls back to default", func(t *testing.T) {
		argsMap := map[string]interface{}{
			"limit": float64(0),
		}
		assert.Equal(t, 10, parseIntArg(argsMap, "limit", 10))
	})
}

func TestParseBoolArg(t *testing.T) {
	t.Parallel()

	t.Run("bool true", func(t *testing.T) {
		argsMap := map[string]interface{}{
			"wait": true,
		}
		assert.True(t, parseBoolArg(argsMap, "wait", false))
	})

	t.Run("bool missing", func(t *testing.T) {
		assert.True(t, parseBoolArg(map[string]interface{}{}, "wait", true))
	})

	t.Run("wrong type", func(t *testing.T) {
		argsMap := map[string]interface{}{
			"wait": "yes",
		}
		assert.False(t, parseBoolArg(argsMap, "wait", false))
	})
}
