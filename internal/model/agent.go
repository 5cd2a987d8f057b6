package model

import "time"

// TierCompaction reports the rows removed by one compaction tier.
type TierCompaction struct {
	Name    string    `json:"name"`
	Cutoff  time.Time `json:"cutoff"`
	Deleted int64     `json:"deleted"`
}

// CompactionResult reports a compaction run. Cancelled runs keep the tiers already committed.
type CompactionResult struct {
	Tiers        []TierCompaction `json:"tiers"`
	TotalDeleted int64            `json:"totalDeleted"`
	Cancelled    bool             `json:"cancelled"`
}

// BackfillRequest selects what to backfill. When Currency is empty the run is in auto mode and
// derives currencies and the start date from the ledger and asset registry.
type BackfillRequest struct {
	Currency string    `json:"currency,omitempty"`
	Start    time.Time `json:"startDate,omitempty"`
	End      time.Time `json:"endDate,omitempty"`
}

// Auto reports whether the request should scan the ledger.
func (r BackfillRequest) Auto() bool {
	return r.Currency == ""
}

// BackfillTier reports one resolution tier of a backfill run.
type BackfillTier struct {
	Resolution Resolution `json:"resolution"`
	Start      time.Time  `json:"start"`
	End        time.Time  `json:"end"`
	Fetched    int        `json:"fetched"`
	Added      int        `json:"added"`
	Updated    int        `json:"updated"`
	Skipped    int        `json:"skipped"`
}

// BackfillResult aggregates a backfill run across tiers.
type BackfillResult struct {
	Currencies []string       `json:"currencies"`
	Start      time.Time      `json:"start"`
	End        time.Time      `json:"end"`
	Tiers      []BackfillTier `json:"tiers"`
	Added      int            `json:"added"`
	Updated    int            `json:"updated"`
	Skipped    int            `json:"skipped"`
	Cancelled  bool           `json:"cancelled"`
}

// AgentState is the lifecycle state of a background agent.
type AgentState string

const (
	AgentIdle      AgentState = "idle"
	AgentRunning   AgentState = "running"
	AgentFailed    AgentState = "failed"
	AgentCancelled AgentState = "cancelled"
)

// AgentStatus is the externally visible state of a registered agent.
type AgentStatus struct {
	Name      string         `json:"name"`
	State     AgentState     `json:"state"`
	LastRun   *time.Time     `json:"lastRun,omitempty"`
	NextRun   *time.Time     `json:"nextRun,omitempty"`
	Duration  time.Duration  `json:"durationNs"`
	LastError string         `json:"lastError,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Logs      []string       `json:"logs,omitempty"`
}

// ComponentState is the health of an external dependency as seen by this process.
type ComponentState string

const (
	ComponentOnline   ComponentState = "online"
	ComponentDegraded ComponentState = "degraded"
	ComponentOffline  ComponentState = "offline"
)

// ComponentStatus is a status-sink entry.
type ComponentStatus struct {
	Name      string            `json:"name"`
	State     ComponentState    `json:"state"`
	LatencyMs int64             `json:"latencyMs"`
	UpdatedAt time.Time         `json:"updatedAt"`
	Details   map[string]string `json:"details,omitempty"`
}
