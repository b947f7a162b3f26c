package session

import "github.com/rendis/blockrun/pkg/schema"

// Apply returns a copy of state with updates applied to the variables of the
// head flow context, plus one history item per applied update.
//
// Updates are applied in order, so a later update to the same variable wins.
// Updates addressing unknown variable IDs are skipped. The input state is
// never modified. A nil state or one without a flow context is returned as is.
func Apply(state *schema.SessionState, updates []schema.VariableUpdate, blockID string) (*schema.SessionState, []schema.SetVariableHistoryItem) {
	if state == nil || len(state.Queue) == 0 {
		return state, nil
	}

	next := state.Clone()
	vars := next.Queue[0].Variables

	index := make(map[string]int, len(vars))
	for i, v := range vars {
		if _, dup := index[v.ID]; !dup {
			index[v.ID] = i
		}
	}

	var history []schema.SetVariableHistoryItem
	for _, u := range updates {
		pos, ok := index[u.VariableID]
		if !ok {
			continue
		}
		value := u.Value
		vars[pos].Value = &value

		history = append(history, schema.SetVariableHistoryItem{
			Index:      next.CurrentHistoryIndex,
			BlockID:    blockID,
			VariableID: u.VariableID,
			Value:      value,
		})
		next.CurrentHistoryIndex++
	}

	return next, history
}
