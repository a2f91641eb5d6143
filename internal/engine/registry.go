package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/petrijr/flowstate/pkg/api"
)

// Registry is an in-memory FlowLocator. Flows are validated when they are
// registered, so configuration errors surface before any request runs.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]*api.Flow
}

var _ api.FlowLocator = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{
		byID: make(map[string]*api.Flow),
	}
}

// Register validates flow and makes it available to executions. Every
// sub-flow the flow references must already be registered, unless it
// refers to the flow itself.
func (r *Registry) Register(flow *api.Flow) error {
	if flow == nil {
		return fmt.Errorf("%w: nil flow", api.ErrInvalidFlow)
	}
	if err := flow.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[flow.ID]; exists {
		return fmt.Errorf("%w: flow %q already registered", api.ErrInvalidFlow, flow.ID)
	}
	for _, sub := range flow.SubflowIDs() {
		if sub == flow.ID {
			continue
		}
		if _, ok := r.byID[sub]; !ok {
			return fmt.Errorf("%w: flow %q references unknown subflow %q", api.ErrInvalidFlow, flow.ID, sub)
		}
	}

	r.byID[flow.ID] = flow
	return nil
}

// Replace swaps a registered flow for a new definition with the same id.
// Executions restored afterwards resolve their states against the new
// definition.
func (r *Registry) Replace(flow *api.Flow) error {
	if err := flow.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[flow.ID]; !exists {
		return fmt.Errorf("%w: %q", api.ErrFlowNotFound, flow.ID)
	}
	r.byID[flow.ID] = flow
	return nil
}

func (r *Registry) FlowDefinition(id string) (*api.Flow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	flow, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", api.ErrFlowNotFound, id)
	}
	return flow, nil
}

// IDs returns the registered flow ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.byID))
	for id := range r.byID {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
