package pinflow

import (
	"context"
	"sync"
)

// Manager tracks live flows by id so HTTP handlers can address them across
// requests. Flows are removed when disposed or completed.
type Manager struct {
	mu    sync.Mutex
	flows map[string]*Flow
	opts  Options
}

func NewManager(opts Options) *Manager {
	return &Manager{
		flows: make(map[string]*Flow),
		opts:  opts,
	}
}

// Start begins a new flow against the given vendor and registers it.
func (m *Manager) Start(ctx context.Context, vendor Vendor) *Flow {
	flow := Start(ctx, vendor, m.opts)
	m.mu.Lock()
	m.flows[flow.ID] = flow
	m.mu.Unlock()
	return flow
}

func (m *Manager) Get(id string) (*Flow, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	flow, ok := m.flows[id]
	return flow, ok
}

// Complete runs the manual exchange for one flow. When the grant lands the
// token is handed out with the snapshot and the flow retired; the token
// leaves the controller exactly once. A pending or failed exchange only
// returns the snapshot.
func (m *Manager) Complete(ctx context.Context, id string) (Snapshot, string, bool) {
	m.mu.Lock()
	flow, ok := m.flows[id]
	m.mu.Unlock()
	if !ok {
		return Snapshot{}, "", false
	}

	snap := flow.Complete(ctx)
	if snap.State != StateSuccess {
		return snap, "", true
	}
	token, _ := flow.Token()
	m.Dispose(id)
	return snap, token, true
}

// Dispose cancels and forgets a flow. Unknown ids are a no-op.
func (m *Manager) Dispose(id string) {
	m.mu.Lock()
	flow, ok := m.flows[id]
	delete(m.flows, id)
	m.mu.Unlock()
	if ok {
		flow.Dispose()
	}
}

// DisposeAll cancels every live flow, for server shutdown.
func (m *Manager) DisposeAll() {
	m.mu.Lock()
	flows := make([]*Flow, 0, len(m.flows))
	for _, flow := range m.flows {
		flows = append(flows, flow)
	}
	m.flows = make(map[string]*Flow)
	m.mu.Unlock()
	for _, flow := range flows {
		flow.Dispose()
	}
}
