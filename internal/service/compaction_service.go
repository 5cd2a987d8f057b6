package service

import (
	"context"
	"sync"
	"time"

	"github.com/ndewijer/networth-tracker/internal/config"
	"github.com/ndewijer/networth-tracker/internal/logging"
	"github.com/ndewijer/networth-tracker/internal/model"
	"github.com/ndewijer/networth-tracker/internal/repository"
)

// compactionTiers lists the down-sampling buckets finest first, aligned with
// config.CompactionConfig.Effective.
var compactionTiers = [4]repository.Bucket{
	repository.Bucket15Min,
	repository.BucketHour,
	repository.BucketDay,
	repository.BucketWeek,
}

// CompactionService down-samples stored rates through four retention tiers.
type CompactionService struct {
	rates *repository.RateRepository
	log   *logging.Entry
	now   func() time.Time

	mu  sync.RWMutex
	cfg config.CompactionConfig
}

// NewCompactionService creates a CompactionService with the given initial configuration.
func NewCompactionService(rates *repository.RateRepository, cfg config.CompactionConfig, log *logging.Logger) *CompactionService {
	return &CompactionService{
		rates: rates,
		log:   logging.Component(log, "compactor"),
		now:   time.Now,
		cfg:   cfg,
	}
}

// Config returns the current configuration.
func (s *CompactionService) Config() config.CompactionConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// UpdateConfig merges updates into the current configuration. Unknown keys and invalid values
// are rejected and leave the configuration unchanged.
func (s *CompactionService) UpdateConfig(updates map[string]int) (config.CompactionConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := s.cfg.Apply(updates)
	if err != nil {
		return s.cfg, err
	}
	s.cfg = next
	return next, nil
}

// Run compacts with the current configuration.
func (s *CompactionService) Run(ctx context.Context) (model.CompactionResult, error) {
	return s.Compact(ctx, s.Config())
}

// Compact runs the four tiers finest first. Each tier keeps the earliest point per
// (symbol, bucket) among points older than its cutoff and commits on its own, so a cancelled run
// keeps the tiers already done and reports them with Cancelled set.
//
// Compaction is idempotent: a second run over the same data deletes nothing.
func (s *CompactionService) Compact(ctx context.Context, cfg config.CompactionConfig) (model.CompactionResult, error) {
	result := model.CompactionResult{Tiers: make([]model.TierCompaction, 0, len(compactionTiers))}
	if err := cfg.Validate(); err != nil {
		return result, err
	}

	days, adjusted := cfg.Effective()
	if adjusted {
		s.log.WithFields(logging.Fields{"configured": cfg, "effective": days}).
			Warn("compaction windows are not non-decreasing, coarser tiers raised")
	}

	now := s.now().UTC()
	for i, bucket := range compactionTiers {
		if err := ctx.Err(); err != nil {
			result.Cancelled = true
			s.log.WithFields(logging.Fields{"deleted": result.TotalDeleted}).Warn("compaction cancelled")
			return result, err
		}

		cutoff := now.AddDate(0, 0, -days[i])
		deleted, err := s.rates.CompactBuckets(ctx, bucket, cutoff)
		if err != nil {
			return result, err
		}
		result.Tiers = append(result.Tiers, model.TierCompaction{Name: string(bucket), Cutoff: cutoff, Deleted: deleted})
		result.TotalDeleted += deleted
	}

	s.log.WithFields(logging.Fields{"deleted": result.TotalDeleted}).Info("compaction finished")
	return result, nil
}
