package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ndewijer/networth-tracker/internal/apperrors"
	"github.com/ndewijer/networth-tracker/internal/logging"
)

// Scheduler triggers agents on cron specs. A trigger that fires while the previous one is still
// running is skipped.
type Scheduler struct {
	cron   *cron.Cron
	runner *AgentRunner
	log    *logging.Entry

	mu      sync.RWMutex
	entries map[string]cron.EntryID
}

// NewScheduler creates a scheduler in UTC and reports next-run times to runner.
func NewScheduler(runner *AgentRunner, log *logging.Logger) *Scheduler {
	entry := logging.Component(log, "scheduler")
	cl := cronLogger{entry: entry}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		runner:  runner,
		log:     entry,
		entries: make(map[string]cron.EntryID),
	}
	runner.SetNextRunFunc(s.NextRun)
	return s
}

// Schedule runs the named agent on spec. An empty spec leaves the agent manual-only.
func (s *Scheduler) Schedule(name, spec string) error {
	if spec == "" {
		return nil
	}
	id, err := s.cron.AddFunc(spec, func() {
		_, err := s.runner.Run(context.Background(), name, nil)
		if errors.Is(err, apperrors.ErrAgentRunning) {
			s.log.WithFields(logging.Fields{"agent": name}).Info("scheduled run skipped, agent busy")
		}
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.entries[name] = id
	s.mu.Unlock()
	s.log.WithFields(logging.Fields{"agent": name, "spec": spec}).Info("agent scheduled")
	return nil
}

// NextRun returns the next scheduled time of the named agent, or the zero time.
func (s *Scheduler) NextRun(name string) time.Time {
	s.mu.RLock()
	id, ok := s.entries[name]
	s.mu.RUnlock()
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

// Start starts the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops triggering new runs and returns a context done when running jobs have returned.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// cronLogger adapts the application logger to cron.Logger.
type cronLogger struct {
	entry *logging.Entry
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(kvFields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.entry.WithError(err).WithFields(kvFields(keysAndValues)).Error(msg)
}

func kvFields(kv []interface{}) logging.Fields {
	fields := make(logging.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			fields[k] = kv[i+1]
		}
	}
	return fields
}
