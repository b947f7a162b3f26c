package schema

// LogStatus classifies an execution log entry.
type LogStatus string

const (
	LogError   LogStatus = "error"
	LogInfo    LogStatus = "info"
	LogSuccess LogStatus = "success"
)

// LogEntry is one human-readable entry of a block's execution trace.
type LogEntry struct {
	Status      LogStatus `json:"status"`
	Description string    `json:"description"`
	Details     string    `json:"details,omitempty"`
}

// ExecutionResult is the uniform outcome of a block invocation.
// A nil NewSessionState means the prior state is unchanged.
type ExecutionResult struct {
	OutgoingEdgeID        string                   `json:"outgoingEdgeId,omitempty"`
	NewSessionState       *SessionState            `json:"newSessionState,omitempty"`
	NewSetVariableHistory []SetVariableHistoryItem `json:"newSetVariableHistory,omitempty"`
	Logs                  []LogEntry               `json:"logs,omitempty"`
}
