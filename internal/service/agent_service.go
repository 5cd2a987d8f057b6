package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ndewijer/networth-tracker/internal/apperrors"
	"github.com/ndewijer/networth-tracker/internal/logging"
	"github.com/ndewijer/networth-tracker/internal/model"
)

// agentLogSize bounds the per-agent log ring.
const agentLogSize = 100

// AgentJob is the body of an agent. params is the raw request payload and may be empty.
// The returned metadata is merged into the agent status.
type AgentJob func(ctx context.Context, params json.RawMessage, run *AgentRun) (map[string]any, error)

// AgentDefinition registers an agent with the runner.
type AgentDefinition struct {
	Name        string
	Description string
	Job         AgentJob
	// Config returns the current settings; nil when the agent has none.
	Config func() any
	// Configure merges settings updates; nil when the agent has none.
	Configure func(updates map[string]int) (any, error)
}

type agentState struct {
	def      AgentDefinition
	state    model.AgentState
	lastRun  time.Time
	duration time.Duration
	lastErr  string
	metadata map[string]any
	logs     []string
	cancel   context.CancelFunc
}

// AgentRunner tracks background agents, serializes runs per agent and keeps their status and logs.
// A run requested while the same agent is running is rejected with apperrors.ErrAgentRunning.
type AgentRunner struct {
	mu      sync.Mutex
	agents  map[string]*agentState
	nextRun func(name string) time.Time
	log     *logging.Entry
	now     func() time.Time

	baseCtx context.Context
	stopAll context.CancelFunc
	wg      sync.WaitGroup
}

// NewAgentRunner creates an empty runner. Background runs are cancelled by Shutdown.
func NewAgentRunner(log *logging.Logger) *AgentRunner {
	ctx, cancel := context.WithCancel(context.Background())
	return &AgentRunner{
		agents:  make(map[string]*agentState),
		log:     logging.Component(log, "agents"),
		now:     time.Now,
		baseCtx: ctx,
		stopAll: cancel,
	}
}

// Register adds an agent. Registering a name twice replaces the definition.
func (r *AgentRunner) Register(def AgentDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[def.Name] = &agentState{def: def, state: model.AgentIdle, metadata: map[string]any{}}
}

// SetNextRunFunc installs the lookup used to report each agent's next scheduled run.
func (r *AgentRunner) SetNextRunFunc(fn func(name string) time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextRun = fn
}

// Run executes an agent synchronously and returns its metadata.
func (r *AgentRunner) Run(ctx context.Context, name string, params json.RawMessage) (map[string]any, error) {
	runCtx, a, err := r.begin(ctx, name)
	if err != nil {
		return nil, err
	}
	return r.execute(runCtx, a, params)
}

// Start executes an agent in the background. It returns once the run is registered.
func (r *AgentRunner) Start(name string, params json.RawMessage) error {
	runCtx, a, err := r.begin(r.baseCtx, name)
	if err != nil {
		return err
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_, _ = r.execute(runCtx, a, params)
	}()
	return nil
}

// Stop cancels a running agent. Already committed work is kept.
func (r *AgentRunner) Stop(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[name]
	if !ok {
		return apperrors.ErrAgentNotFound
	}
	if a.state != model.AgentRunning || a.cancel == nil {
		return apperrors.ErrAgentNotRunning
	}
	a.cancel()
	r.appendLog(a, "WARNING", "stop requested")
	return nil
}

// Shutdown cancels every running agent and waits for background runs to return.
func (r *AgentRunner) Shutdown() {
	r.stopAll()
	r.mu.Lock()
	for _, a := range r.agents {
		if a.cancel != nil {
			a.cancel()
		}
	}
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *AgentRunner) begin(ctx context.Context, name string) (context.Context, *agentState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[name]
	if !ok {
		return nil, nil, apperrors.ErrAgentNotFound
	}
	if a.state == model.AgentRunning {
		r.appendLog(a, "WARNING", "run rejected: already running")
		r.log.WithFields(logging.Fields{"agent": name}).Warn("agent already running")
		return nil, nil, apperrors.ErrAgentRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.state = model.AgentRunning
	a.cancel = cancel
	a.lastRun = r.now()
	a.lastErr = ""
	r.appendLog(a, "INFO", "started")
	return runCtx, a, nil
}

func (r *AgentRunner) execute(ctx context.Context, a *agentState, params json.RawMessage) (map[string]any, error) {
	name := a.def.Name
	start := r.now()
	metadata, err := a.def.Job(ctx, params, &AgentRun{runner: r, agent: a})
	elapsed := r.now().Sub(start)

	r.mu.Lock()
	defer r.mu.Unlock()
	a.cancel()
	a.cancel = nil
	a.duration = elapsed
	for k, v := range metadata {
		a.metadata[k] = v
	}

	entry := r.log.WithFields(logging.Fields{"agent": name, "duration": elapsed.String()})
	switch {
	case err == nil:
		a.state = model.AgentIdle
		r.appendLog(a, "SUCCESS", fmt.Sprintf("completed in %dms", elapsed.Milliseconds()))
		entry.Info("agent completed")
	case errors.Is(err, context.Canceled):
		a.state = model.AgentCancelled
		r.appendLog(a, "WARNING", "cancelled")
		entry.Warn("agent cancelled")
	default:
		a.state = model.AgentFailed
		a.lastErr = err.Error()
		r.appendLog(a, "ERROR", "failed: "+err.Error())
		entry.WithError(err).Error("agent failed")
	}
	return metadata, err
}

// appendLog must be called with r.mu held.
func (r *AgentRunner) appendLog(a *agentState, level, msg string) {
	line := fmt.Sprintf("%s %s %s", r.now().UTC().Format(time.RFC3339), level, msg)
	a.logs = append(a.logs, line)
	if over := len(a.logs) - agentLogSize; over > 0 {
		a.logs = append(a.logs[:0:0], a.logs[over:]...)
	}
}

// Status returns the status of one agent.
func (r *AgentRunner) Status(name string) (model.AgentStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[name]
	if !ok {
		return model.AgentStatus{}, apperrors.ErrAgentNotFound
	}
	return r.snapshot(a), nil
}

// Statuses returns the status of every agent ordered by name.
func (r *AgentRunner) Statuses() []model.AgentStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.AgentStatus, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, r.snapshot(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *AgentRunner) snapshot(a *agentState) model.AgentStatus {
	st := model.AgentStatus{
		Name:      a.def.Name,
		State:     a.state,
		Duration:  a.duration,
		LastError: a.lastErr,
		Metadata:  make(map[string]any, len(a.metadata)+1),
		Logs:      append([]string(nil), a.logs...),
	}
	for k, v := range a.metadata {
		st.Metadata[k] = v
	}
	if a.def.Config != nil {
		st.Metadata["config"] = a.def.Config()
	}
	if !a.lastRun.IsZero() {
		lr := a.lastRun
		st.LastRun = &lr
	}
	if r.nextRun != nil {
		if next := r.nextRun(a.def.Name); !next.IsZero() {
			st.NextRun = &next
		}
	}
	return st
}

// UpdateConfig merges settings updates into an agent's configuration.
func (r *AgentRunner) UpdateConfig(name string, updates map[string]int) (any, error) {
	r.mu.Lock()
	a, ok := r.agents[name]
	r.mu.Unlock()
	if !ok {
		return nil, apperrors.ErrAgentNotFound
	}
	if a.def.Configure == nil {
		return nil, fmt.Errorf("%w: agent %s has no settings", apperrors.ErrUnknownConfigKey, name)
	}
	cfg, err := a.def.Configure(updates)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.appendLog(a, "INFO", "configuration updated")
	r.mu.Unlock()
	return cfg, nil
}

// AgentRun is handed to a running job for progress logging.
type AgentRun struct {
	runner *AgentRunner
	agent  *agentState
}

// Logf appends a line to the agent's log ring.
func (run *AgentRun) Logf(format string, args ...any) {
	run.runner.mu.Lock()
	defer run.runner.mu.Unlock()
	run.runner.appendLog(run.agent, "INFO", fmt.Sprintf(format, args...))
}
