package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/ndewijer/networth-tracker/internal/database"
	"github.com/ndewijer/networth-tracker/internal/model"
)

// StatusSnapshotter exposes the component status map.
type StatusSnapshotter interface {
	Snapshot() []model.ComponentStatus
}

// SystemStatus is the operational view of the process.
type SystemStatus struct {
	SchemaVersion   int64                   `json:"schemaVersion"`
	Components      []model.ComponentStatus `json:"components"`
	BackoffUntil    *time.Time              `json:"backoffUntil,omitempty"`
	LastRateRefresh *time.Time              `json:"lastRateRefresh,omitempty"`
}

// SystemService handles system-related operations
type SystemService struct {
	db      *sql.DB
	status  StatusSnapshotter
	backoff func() time.Time
	market  *MarketDataService
}

// NewSystemService creates a new SystemService. backoff reports the end of the fetcher's
// throttling backoff and may be nil.
func NewSystemService(db *sql.DB, status StatusSnapshotter, backoff func() time.Time, market *MarketDataService) *SystemService {
	return &SystemService{
		db:      db,
		status:  status,
		backoff: backoff,
		market:  market,
	}
}

// CheckHealth checks the health of the system
func (s *SystemService) CheckHealth() error {
	return database.HealthCheck(s.db)
}

// Status returns component health, the schema version and rate cache state.
func (s *SystemService) Status(ctx context.Context) (SystemStatus, error) {
	version, err := database.SchemaVersion(ctx, s.db)
	if err != nil {
		return SystemStatus{}, err
	}
	st := SystemStatus{SchemaVersion: version, Components: []model.ComponentStatus{}}
	if s.status != nil {
		st.Components = s.status.Snapshot()
	}
	if s.backoff != nil {
		if until := s.backoff(); !until.IsZero() {
			st.BackoffUntil = &until
		}
	}
	if s.market != nil {
		if last := s.market.LastUpdate(); !last.IsZero() {
			st.LastRateRefresh = &last
		}
	}
	return st, nil
}
