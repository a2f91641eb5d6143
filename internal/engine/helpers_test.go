package engine

import (
	"context"
	"testing"

	"github.com/petrijr/flowstate/pkg/api"
	"github.com/petrijr/flowstate/pkg/flowtest"
)

// newTestFactory registers flows in order, so sub-flows must come before
// the flows that reference them.
func newTestFactory(t *testing.T, cfg Config, flows ...*api.Flow) (*Factory, *Registry) {
	t.Helper()
	reg := NewRegistry()
	for _, flow := range flows {
		if err := reg.Register(flow); err != nil {
			t.Fatalf("Register(%s) failed: %v", flow.ID, err)
		}
	}
	cfg.Locator = reg
	return NewFactory(cfg), reg
}

func on(event, target string) *api.Transition {
	return &api.Transition{On: api.OnEvent(event), Target: api.To(target)}
}

// result returns an action that always signals eventID.
func result(eventID string) api.Action {
	return func(context.Context, api.RequestContext) (string, error) {
		return eventID, nil
	}
}

// enterNameFlow is a single view that ends on "submit".
func enterNameFlow() *api.Flow {
	return &api.Flow{
		ID: "enterName",
		States: []*api.State{
			{ID: "enterName", Kind: api.ViewState, Transitions: []*api.Transition{on("submit", "done")}},
			{ID: "done", Kind: api.EndState},
		},
	}
}

func startExecution(t *testing.T, f *Factory, flowID string, input *api.AttributeMap) (*Execution, *flowtest.MockExternalContext) {
	t.Helper()
	exec, err := f.Create(flowID)
	if err != nil {
		t.Fatalf("Create(%s) failed: %v", flowID, err)
	}
	ext := flowtest.NewMockExternalContext()
	if err := exec.Start(context.Background(), input, ext); err != nil {
		t.Fatalf("Start(%s) failed: %v", flowID, err)
	}
	return exec, ext
}

// resume sends eventID as a new request in ext's session. An empty
// eventID is a refresh.
func resume(t *testing.T, exec *Execution, ext *flowtest.MockExternalContext, eventID string) error {
	t.Helper()
	next := ext.InSession()
	if eventID != "" {
		next.WithEvent(eventID)
	}
	return exec.Resume(context.Background(), next)
}

func currentStateID(t *testing.T, exec *Execution) string {
	t.Helper()
	session := exec.ActiveSession()
	if session == nil || session.State() == nil {
		t.Fatalf("execution has no current state")
	}
	return session.State().ID
}

// fakeKeyFactory hands out keys in conversation "c" and counts calls.
type fakeKeyFactory struct {
	getKey    int
	removeAll int
	removed   int
	updated   int
}

var _ KeyFactory = (*fakeKeyFactory)(nil)

func (f *fakeKeyFactory) GetKey(context.Context, api.ExternalContext, *Execution) (api.ExecutionKey, error) {
	f.getKey++
	return api.ExecutionKey{ConversationID: "c", SnapshotID: f.getKey}, nil
}

func (f *fakeKeyFactory) RemoveAllFlowExecutionSnapshots(context.Context, api.ExternalContext, *Execution) error {
	f.removeAll++
	return nil
}

func (f *fakeKeyFactory) RemoveFlowExecutionSnapshot(context.Context, api.ExternalContext, *Execution) error {
	f.removed++
	return nil
}

func (f *fakeKeyFactory) UpdateFlowExecutionSnapshot(context.Context, api.ExternalContext, *Execution) error {
	f.updated++
	return nil
}
