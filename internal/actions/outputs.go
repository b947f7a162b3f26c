package actions

import (
	"github.com/rendis/blockrun/internal/session"
	"github.com/rendis/blockrun/pkg/schema"
)

// Outputs stages the values a handler computed for its configured target
// variables. Targets that are unset or not in the session are skipped.
type Outputs struct {
	state   *schema.SessionState
	updates []schema.VariableUpdate
}

// NewOutputs starts staging against the given session.
func NewOutputs(state *schema.SessionState) *Outputs {
	return &Outputs{state: state}
}

// Set stages value for variableID and reports whether it was staged.
func (o *Outputs) Set(variableID, value string) bool {
	if _, ok := o.state.FindVariable(variableID); !ok {
		return false
	}
	o.updates = append(o.updates, schema.VariableUpdate{VariableID: variableID, Value: value})
	return true
}

// SetAll stages the same value for every given target.
func (o *Outputs) SetAll(value string, variableIDs ...string) {
	for _, id := range variableIDs {
		o.Set(id, value)
	}
}

// Len returns the number of staged updates.
func (o *Outputs) Len() int { return len(o.updates) }

// Finish builds the handler result. When anything was staged the session is
// mutated and the new state and history are attached.
func (o *Outputs) Finish(ec ExecContext, logs []schema.LogEntry) *schema.ExecutionResult {
	res := ec.Result(logs...)
	if len(o.updates) == 0 {
		return res
	}
	res.NewSessionState, res.NewSetVariableHistory = session.Apply(o.state, o.updates, ec.BlockID)
	return res
}
