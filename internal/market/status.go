package market

import (
	"sort"
	"sync"
	"time"

	"github.com/ndewijer/networth-tracker/internal/model"
)

// StatusSink receives component health updates. Implementations must be safe for concurrent use.
type StatusSink interface {
	Report(name string, state model.ComponentState, latency time.Duration, details map[string]string)
}

// Monitor is an in-memory StatusSink that keeps the latest report per component.
type Monitor struct {
	mu         sync.RWMutex
	components map[string]model.ComponentStatus
	now        func() time.Time
}

// NewMonitor creates an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		components: make(map[string]model.ComponentStatus),
		now:        time.Now,
	}
}

// Report records the latest state of a component.
func (m *Monitor) Report(name string, state model.ComponentState, latency time.Duration, details map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components[name] = model.ComponentStatus{
		Name:      name,
		State:     state,
		LatencyMs: latency.Milliseconds(),
		UpdatedAt: m.now().UTC(),
		Details:   details,
	}
}

// Get returns the latest status of a component.
func (m *Monitor) Get(name string) (model.ComponentStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.components[name]
	return s, ok
}

// Snapshot returns all component statuses sorted by name.
func (m *Monitor) Snapshot() []model.ComponentStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.ComponentStatus, 0, len(m.components))
	for _, s := range m.components {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type discardSink struct{}

func (discardSink) Report(string, model.ComponentState, time.Duration, map[string]string) {}
