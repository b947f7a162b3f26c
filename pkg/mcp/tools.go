package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rendis/blockrun/internal/store"
	"github.com/rendis/blockrun/internal/validation"
	"github.com/rendis/blockrun/pkg/schema"
)

// handleExecute runs one block and returns its execution result.
func (s *BlockrunServer) handleExecute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.dispatcher == nil {
		return mcp.NewToolResultError("block execution is not configured"), nil
	}
	blockRaw, err := requireObject(req, "block")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	stateRaw, err := requireObject(req, "state")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if s.validator != nil {
		if vErr := s.validator.ValidateBlock(blockRaw); vErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid block: %v", vErr)), nil
		}
	}
	var block schema.Block
	if err := json.Unmarshal(blockRaw, &block); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid block: %v", err)), nil
	}
	var state schema.SessionState
	if err := json.Unmarshal(stateRaw, &state); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid state: %v", err)), nil
	}

	result, runErr := s.dispatcher.Dispatch(ctx, &block, &state)
	if runErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("block execution failed: %v", runErr)), nil
	}
	return marshalResult(result)
}

// handleValidate runs the structural and semantic checks on a block.
func (s *BlockrunServer) handleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.validator == nil {
		return mcp.NewToolResultError("validation is not configured"), nil
	}
	blockRaw, err := requireObject(req, "block")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var state *schema.SessionState
	if stateRaw, ok := optionalObject(req, "state"); ok {
		state = &schema.SessionState{}
		if err := json.Unmarshal(stateRaw, state); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid state: %v", err)), nil
		}
	}

	var lookup validation.ActionLookup
	if s.dispatcher != nil {
		lookup = s.dispatcher.Registry()
	}

	_, result, vErr := validation.Validate(s.validator, blockRaw, state, lookup)
	if vErr != nil {
		result = &schema.ValidationResult{}
		if se, ok := vErr.(*schema.Error); ok && se.Details != nil {
			if violations, ok := se.Details["violations"].([]string); ok {
				for _, v := range violations {
					result.AddError("", se.Code, v)
				}
			}
		}
		if result.Valid() {
			result.AddError("", schema.ErrCodeValidation, vErr.Error())
		}
	}

	return marshalResult(map[string]any{
		"valid":    result.Valid(),
		"errors":   result.Errors,
		"warnings": result.Warnings,
	})
}

// handleActions lists the registered handlers.
func (s *BlockrunServer) handleActions(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.dispatcher == nil {
		return mcp.NewToolResultError("block execution is not configured"), nil
	}
	return marshalResult(s.dispatcher.Registry().List())
}

// handleHistory lists execution log entries.
func (s *BlockrunServer) handleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.history == nil {
		return mcp.NewToolResultError("execution history is not configured"), nil
	}
	workspaceID, err := req.RequireString("workspace_id")
	if err != nil {
		return mcp.NewToolResultError("workspace_id is required"), nil
	}

	filter := store.ExecutionFilter{
		WorkspaceID: workspaceID,
		BlockID:     req.GetString("block_id", ""),
		Since:       int64(req.GetFloat("since", 0)),
		Limit:       req.GetInt("limit", 50),
	}
	records, listErr := s.history.ListExecutions(ctx, filter)
	if listErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("history query failed: %v", listErr)), nil
	}
	if records == nil {
		records = []*store.ExecutionRecord{}
	}
	return marshalResult(records)
}

// credentialSummary is what credentials.list exposes: never the ciphertext.
type credentialSummary struct {
	ID        string           `json:"id"`
	Type      schema.BlockType `json:"type"`
	Name      string           `json:"name"`
	CreatedAt time.Time        `json:"createdAt"`
}

func (s *BlockrunServer) handleCredentials(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.credentials == nil {
		return mcp.NewToolResultError("credential store is not configured"), nil
	}
	workspaceID, err := req.RequireString("workspace_id")
	if err != nil {
		return mcp.NewToolResultError("workspace_id is required"), nil
	}

	creds, listErr := s.credentials.List(ctx, workspaceID)
	if listErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("credential query failed: %v", listErr)), nil
	}
	out := make([]credentialSummary, 0, len(creds))
	for _, c := range creds {
		out = append(out, credentialSummary{ID: c.ID, Type: c.Type, Name: c.Name, CreatedAt: c.CreatedAt})
	}
	return marshalResult(out)
}

// --- Helpers ---

// requireObject returns the named object argument re-encoded as JSON.
func requireObject(req mcp.CallToolRequest, key string) ([]byte, error) {
	raw, ok := optionalObject(req, key)
	if !ok {
		return nil, fmt.Errorf("%s is required", key)
	}
	return raw, nil
}

func optionalObject(req mcp.CallToolRequest, key string) ([]byte, bool) {
	obj := mcp.ParseStringMap(req, key, nil)
	if obj == nil {
		return nil, false
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, false
	}
	return data, true
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
