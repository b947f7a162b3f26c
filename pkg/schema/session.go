package schema

// Variable is a named slot for a value within a session.
// Value is nil when the variable has never been set.
type Variable struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Value *string `json:"value,omitempty"`
}

// StringValue returns the current value or "" when unset.
func (v Variable) StringValue() string {
	if v.Value == nil {
		return ""
	}
	return *v.Value
}

// FlowContext is one entry of the active sub-workflow queue.
type FlowContext struct {
	FlowID    string     `json:"flowId"`
	Variables []Variable `json:"variables"`
}

// SessionState is an immutable snapshot of a conversation.
// Mutations go through session.Apply, which always returns a new value.
type SessionState struct {
	WorkspaceID         string        `json:"workspaceId"`
	Queue               []FlowContext `json:"queue"`
	CurrentHistoryIndex int           `json:"currentSetVariableHistoryIndex,omitempty"`
}

// Variables returns the variable set of the head flow context.
func (s *SessionState) Variables() []Variable {
	if s == nil || len(s.Queue) == 0 {
		return nil
	}
	return s.Queue[0].Variables
}

// FindVariable looks up a variable of the head flow context by ID.
func (s *SessionState) FindVariable(id string) (Variable, bool) {
	if id == "" {
		return Variable{}, false
	}
	for _, v := range s.Variables() {
		if v.ID == id {
			return v, true
		}
	}
	return Variable{}, false
}

// Clone returns a deep copy of the state.
func (s *SessionState) Clone() *SessionState {
	if s == nil {
		return nil
	}
	out := &SessionState{
		WorkspaceID:         s.WorkspaceID,
		CurrentHistoryIndex: s.CurrentHistoryIndex,
	}
	if s.Queue != nil {
		out.Queue = make([]FlowContext, len(s.Queue))
		for i, fc := range s.Queue {
			out.Queue[i] = FlowContext{FlowID: fc.FlowID, Variables: cloneVariables(fc.Variables)}
		}
	}
	return out
}

func cloneVariables(vars []Variable) []Variable {
	if vars == nil {
		return nil
	}
	out := make([]Variable, len(vars))
	for i, v := range vars {
		out[i] = v
		if v.Value != nil {
			val := *v.Value
			out[i].Value = &val
		}
	}
	return out
}

// VariableUpdate sets a variable, addressed by ID, to a new text value.
type VariableUpdate struct {
	VariableID string `json:"variableId"`
	Value      string `json:"value"`
}

// SetVariableHistoryItem records one applied VariableUpdate.
type SetVariableHistoryItem struct {
	Index      int    `json:"index"`
	BlockID    string `json:"blockId"`
	VariableID string `json:"variableId"`
	Value      string `json:"value"`
}
