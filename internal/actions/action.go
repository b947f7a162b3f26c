package actions

import (
	"context"

	"github.com/rendis/blockrun/pkg/schema"
)

// Handler executes one action kind of an integration block.
type Handler interface {
	Info() HandlerInfo
	Execute(ctx context.Context, opts schema.ActionOptions, ec ExecContext) (*schema.ExecutionResult, error)
}

// HandlerInfo describes a registered handler for listing.
type HandlerInfo struct {
	Kind        schema.ActionKind `json:"kind"`
	Integration schema.BlockType  `json:"integration"`
	Description string            `json:"description,omitempty"`
}

// ExecContext is what a handler receives besides its options.
type ExecContext struct {
	BlockID        string
	OutgoingEdgeID string
	State          *schema.SessionState
	Token          string
}

// Variables returns the current variable set of the session.
func (ec ExecContext) Variables() []schema.Variable {
	return ec.State.Variables()
}

// Result returns a result that leaves the session unchanged.
func (ec ExecContext) Result(logs ...schema.LogEntry) *schema.ExecutionResult {
	return &schema.ExecutionResult{OutgoingEdgeID: ec.OutgoingEdgeID, Logs: logs}
}

// Fail returns a result with a single error log.
func (ec ExecContext) Fail(description string) *schema.ExecutionResult {
	return ec.Result(ErrorLog(description))
}

func ErrorLog(description string) schema.LogEntry {
	return schema.LogEntry{Status: schema.LogError, Description: description}
}

func InfoLog(description string) schema.LogEntry {
	return schema.LogEntry{Status: schema.LogInfo, Description: description}
}

func SuccessLog(description string) schema.LogEntry {
	return schema.LogEntry{Status: schema.LogSuccess, Description: description}
}
