package actions

import (
	"sort"
	"sync"

	"github.com/rendis/blockrun/pkg/schema"
)

// Registry is a thread-safe set of handlers keyed by action kind.
type Registry struct {
	mu       sync.RWMutex
	handlers map[schema.ActionKind]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[schema.ActionKind]Handler),
	}
}

// Register adds a handler. Returns error on duplicate kind.
func (r *Registry) Register(h Handler) error {
	if h == nil {
		return schema.NewError(schema.ErrCodeValidation, "handler is nil")
	}
	kind := h.Info().Kind
	if kind == "" {
		return schema.NewError(schema.ErrCodeValidation, "handler action kind is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[kind]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "action %q already registered", kind)
	}
	r.handlers[kind] = h
	return nil
}

// Get retrieves the handler of an action kind.
func (r *Registry) Get(kind schema.ActionKind) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[kind]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeActionUnavailable, "action %q not registered", kind)
	}
	return h, nil
}

// Has checks if an action kind has a handler.
func (r *Registry) Has(kind schema.ActionKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[kind]
	return ok
}

// Missing returns the kinds, in input order, that have no handler.
func (r *Registry) Missing(kinds []schema.ActionKind) []schema.ActionKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var missing []schema.ActionKind
	for _, k := range kinds {
		if _, ok := r.handlers[k]; !ok {
			missing = append(missing, k)
		}
	}
	return missing
}

// List returns info for all registered handlers, sorted by integration then kind.
func (r *Registry) List() []HandlerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]HandlerInfo, 0, len(r.handlers))
	for _, h := range r.handlers {
		infos = append(infos, h.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Integration != infos[j].Integration {
			return infos[i].Integration < infos[j].Integration
		}
		return infos[i].Kind < infos[j].Kind
	})
	return infos
}

// Count returns the number of registered handlers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}
