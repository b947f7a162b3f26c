package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBlockrunServer(t *testing.T) {
	s := NewBlockrunServer(BlockrunServerDeps{})
	require.NotNil(t, s)
	assert.NotNil(t, s.mcpServer)
	assert.NotNil(t, s.logger)
	assert.Same(t, s.mcpServer, s.MCPServer())
}

func TestToolRegistration(t *testing.T) {
	s := NewBlockrunServer(BlockrunServerDeps{})

	tools := s.mcpServer.ListTools()
	require.Len(t, tools, 5)

	for _, name := range []string{
		"blocks.execute",
		"blocks.validate",
		"blocks.actions",
		"blocks.history",
		"credentials.list",
	} {
		assert.NotNil(t, s.mcpServer.GetTool(name), "tool %s should be registered", name)
	}
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		toolName    string
		description string
	}{
		{"blocks.execute", "Execute an integration block against a session state"},
		{"blocks.validate", "Validate a block without executing it"},
		{"blocks.actions", "List the registered integration actions"},
		{"blocks.history", "List past block executions of a workspace"},
		{"credentials.list", "List the credentials of a workspace without their secrets"},
	}

	s := NewBlockrunServer(BlockrunServerDeps{})

	for _, tc := range tests {
		t.Run(tc.toolName, func(t *testing.T) {
			tool := s.mcpServer.GetTool(tc.toolName)
			require.NotNil(t, tool)
			assert.Equal(t, tc.description, tool.Tool.Description)
		})
	}
}
