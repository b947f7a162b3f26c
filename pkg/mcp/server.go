package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/blockrun/internal/actions"
	"github.com/rendis/blockrun/internal/store"
	"github.com/rendis/blockrun/internal/validation"
	"github.com/rendis/blockrun/pkg/schema"
)

// BlockDispatcher executes one integration block. actions.Dispatcher
// implements it.
type BlockDispatcher interface {
	Dispatch(ctx context.Context, block *schema.Block, state *schema.SessionState) (*schema.ExecutionResult, error)
	Registry() *actions.Registry
}

// ExecutionLister reads the execution log.
type ExecutionLister interface {
	ListExecutions(ctx context.Context, filter store.ExecutionFilter) ([]*store.ExecutionRecord, error)
}

// CredentialLister lists the credentials of a workspace.
type CredentialLister interface {
	List(ctx context.Context, workspaceID string) ([]*schema.Credential, error)
}

// BlockrunServerDeps holds the dependencies for creating a BlockrunServer.
// Only Dispatcher is required; tools whose dependency is nil report an error.
type BlockrunServerDeps struct {
	Dispatcher  BlockDispatcher
	Validator   validation.Validator
	History     ExecutionLister
	Credentials CredentialLister
	Logger      *slog.Logger
}

// BlockrunServer wraps an MCP server with block execution tool handlers.
type BlockrunServer struct {
	dispatcher  BlockDispatcher
	validator   validation.Validator
	history     ExecutionLister
	credentials CredentialLister
	logger      *slog.Logger
	mcpServer   *server.MCPServer
}

// NewBlockrunServer creates a new BlockrunServer with all tools registered.
func NewBlockrunServer(deps BlockrunServerDeps) *BlockrunServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &BlockrunServer{
		dispatcher:  deps.Dispatcher,
		validator:   deps.Validator,
		history:     deps.History,
		credentials: deps.Credentials,
		logger:      logger,
	}

	mcpSrv := server.NewMCPServer(
		"blockrun",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Blockrun executes integration blocks against a conversation session. Use blocks.execute to run a block, blocks.validate to check one before running it, blocks.actions to list the available actions, blocks.history to read past executions and credentials.list to find credential IDs."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *BlockrunServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *BlockrunServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *BlockrunServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: executeTool(), Handler: s.handleExecute},
		{Tool: validateTool(), Handler: s.handleValidate},
		{Tool: actionsTool(), Handler: s.handleActions},
		{Tool: historyTool(), Handler: s.handleHistory},
		{Tool: credentialsTool(), Handler: s.handleCredentials},
	}
}

// --- Tool definitions ---

func executeTool() mcp.Tool {
	return mcp.NewTool("blocks.execute",
		mcp.WithDescription("Execute an integration block against a session state"),
		mcp.WithObject("block", mcp.Required(), mcp.Description("Block with id, type, outgoingEdgeId and options")),
		mcp.WithObject("state", mcp.Required(), mcp.Description("Session state with workspaceId and the variable queue")),
	)
}

func validateTool() mcp.Tool {
	return mcp.NewTool("blocks.validate",
		mcp.WithDescription("Validate a block without executing it"),
		mcp.WithObject("block", mcp.Required(), mcp.Description("Block to validate")),
		mcp.WithObject("state", mcp.Description("Session state used to check output variables")),
	)
}

func actionsTool() mcp.Tool {
	return mcp.NewTool("blocks.actions",
		mcp.WithDescription("List the registered integration actions"),
	)
}

func historyTool() mcp.Tool {
	return mcp.NewTool("blocks.history",
		mcp.WithDescription("List past block executions of a workspace"),
		mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace to query")),
		mcp.WithString("block_id", mcp.Description("Only executions of this block")),
		mcp.WithNumber("since", mcp.Description("Only executions after this sequence number of block_id; requires block_id")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of executions (default 50)")),
	)
}

func credentialsTool() mcp.Tool {
	return mcp.NewTool("credentials.list",
		mcp.WithDescription("List the credentials of a workspace without their secrets"),
		mcp.WithString("workspace_id", mcp.Required(), mcp.Description("Workspace to query")),
	)
}
