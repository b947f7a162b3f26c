package store

import (
	"time"

	"github.com/rendis/blockrun/pkg/schema"
)

// ExecutionRecord is an immutable entry of the execution log: one per
// dispatched block.
type ExecutionRecord struct {
	ID             int64                           `json:"id"`
	WorkspaceID    string                          `json:"workspace_id"`
	BlockID        string                          `json:"block_id"`
	Action         string                          `json:"action,omitempty"`
	OutgoingEdgeID string                          `json:"outgoing_edge_id,omitempty"`
	Logs           []schema.LogEntry               `json:"logs"`
	Updates        []schema.SetVariableHistoryItem `json:"updates"`
	Sequence       int64                           `json:"sequence"`
	CreatedAt      time.Time                       `json:"created_at"`
}

// ExecutionFilter narrows ListExecutions.
type ExecutionFilter struct {
	WorkspaceID string
	BlockID     string
	Since       int64 // per-block sequence, exclusive; needs BlockID
	Limit       int
}

// NewExecutionRecord builds the log entry for one dispatch result.
func NewExecutionRecord(workspaceID string, block *schema.Block, res *schema.ExecutionResult) *ExecutionRecord {
	rec := &ExecutionRecord{WorkspaceID: workspaceID}
	if block != nil {
		rec.BlockID = block.ID
		if block.Options != nil {
			rec.Action = string(block.Options.Kind())
		}
	}
	if res != nil {
		rec.OutgoingEdgeID = res.OutgoingEdgeID
		rec.Logs = res.Logs
		rec.Updates = res.NewSetVariableHistory
	}
	return rec
}
