package tool

import (
	"sync"

	"flightbot/internal/domain"
)

// Registry holds the tools exposed by the dispatch service. Registration
// order is preserved and duplicates are allowed: lookup returns the first
// tool whose name matches, so the earliest registration wins.
//
// The lock guards the slice only. It is never held across a tool execution,
// so a slow tool cannot stall discovery or other dispatches.
type Registry struct {
	mu    sync.RWMutex
	tools []domain.Tool
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a tool to the set. Names are not checked for uniqueness.
func (r *Registry) Register(t domain.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools = append(r.tools, t)
}

// Find returns the first registered tool with the given name.
func (r *Registry) Find(name string) (domain.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tools {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.tools))
	for i, t := range r.tools {
		names[i] = t.Name()
	}
	return names
}

// Descriptors returns the discovery view of all tools in registration order.
func (r *Registry) Descriptors() []domain.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	descs := make([]domain.ToolDescriptor, len(r.tools))
	for i, t := range r.tools {
		descs[i] = domain.ToolDescriptor{Name: t.Name(), Description: t.Description()}
	}
	return descs
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
