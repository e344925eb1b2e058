// Package stats aggregates the sync audit trail, queue depths and conflict
// counts into per-store and chain-wide health numbers for dashboards.
package stats

import (
	"context"
	"time"

	"github.com/storesync/storesync/internal/batch"
	"github.com/storesync/storesync/internal/conflict"
	"github.com/storesync/storesync/internal/domain"
	"github.com/storesync/storesync/internal/logger"
	"github.com/storesync/storesync/internal/queue"
	"github.com/storesync/storesync/internal/rules"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

// StoreStats is one store's sync health snapshot.
type StoreStats struct {
	StoreID             int        `json:"store_id"`
	Enabled             bool       `json:"enabled"`
	PendingItems        int        `json:"pending_items"`
	DeadLetteredItems   int        `json:"dead_lettered_items"`
	UnresolvedConflicts int64      `json:"unresolved_conflicts"`
	OldestPendingAge    string     `json:"oldest_pending_age,omitempty"`
	SyncRuns            int64      `json:"sync_runs"`
	SucceededRuns       int64      `json:"succeeded_runs"`
	SuccessRate         float64    `json:"success_rate"`
	AvgDurationMS       float64    `json:"avg_duration_ms"`
	LastSyncAt          *time.Time `json:"last_sync_at,omitempty"`
	LastSyncAge         string     `json:"last_sync_age"`
}

// ChainStats rolls every configured store up into one view.
type ChainStats struct {
	Stores              []StoreStats `json:"stores"`
	TotalPending        int          `json:"total_pending"`
	TotalDeadLettered   int          `json:"total_dead_lettered"`
	UnresolvedConflicts int64        `json:"unresolved_conflicts"`
	SyncRuns            int64        `json:"sync_runs"`
	SuccessRate         float64      `json:"success_rate"`
}

type Service interface {
	// StoreStats aggregates one store's health over the given window.
	StoreStats(ctx context.Context, storeID int, window time.Duration) (*StoreStats, error)
	// ChainStats aggregates every configured store.
	ChainStats(ctx context.Context, window time.Duration) (*ChainStats, error)
	RecentLogs(ctx context.Context, storeID int, limit int) ([]domain.SyncLog, error)
	// PruneLogs deletes audit rows older than retention.
	PruneLogs(ctx context.Context, retention time.Duration) (int64, error)
}

func NewService(
	log logger.Logger,
	logs domain.SyncLogRepo,
	queueSvc queue.Service,
	conflictSvc conflict.Service,
	batchSvc batch.Service,
	rulesSvc rules.Service,
	clock domain.Clock,
) Service {
	return &service{
		log:       log.With().Str("module", "stats").Logger(),
		logs:      logs,
		queue:     queueSvc,
		conflicts: conflictSvc,
		batches:   batchSvc,
		rules:     rulesSvc,
		clock:     clock,
	}
}

type service struct {
	log       zerolog.Logger
	logs      domain.SyncLogRepo
	queue     queue.Service
	conflicts conflict.Service
	batches   batch.Service
	rules     rules.Service
	clock     domain.Clock
}

func (s *service) StoreStats(ctx context.Context, storeID int, window time.Duration) (*StoreStats, error) {
	now := s.clock.Now()

	out := &StoreStats{StoreID: storeID, LastSyncAge: "never"}

	enabled, err := s.rules.StoreEnabled(ctx, storeID)
	if err != nil {
		return nil, err
	}
	out.Enabled = enabled

	pending, err := s.queue.GetPendingItems(ctx, storeID)
	if err != nil {
		return nil, err
	}
	out.PendingItems = len(pending)
	if oldest := oldestCreatedAt(pending); oldest != nil {
		out.OldestPendingAge = humanize.RelTime(*oldest, now, "ago", "from now")
	}

	failed, err := s.queue.GetFailedItems(ctx, storeID)
	if err != nil {
		return nil, err
	}
	out.DeadLetteredItems = len(failed)

	unresolved, err := s.conflicts.CountUnresolved(ctx, storeID)
	if err != nil {
		return nil, err
	}
	out.UnresolvedConflicts = unresolved

	logStats, err := s.logs.Stats(ctx, storeID, now.Add(-window))
	if err != nil {
		return nil, err
	}
	out.SyncRuns = logStats.Total
	out.SucceededRuns = logStats.Succeeded
	out.AvgDurationMS = logStats.AvgDurationMS
	if logStats.Total > 0 {
		out.SuccessRate = float64(logStats.Succeeded) / float64(logStats.Total)
	}

	last, err := s.batches.LastSuccessful(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if last != nil && last.CompletedAt != nil {
		out.LastSyncAt = last.CompletedAt
		out.LastSyncAge = humanize.RelTime(*last.CompletedAt, now, "ago", "from now")
	}

	return out, nil
}

func (s *service) ChainStats(ctx context.Context, window time.Duration) (*ChainStats, error) {
	cfgs, err := s.rules.ListConfigurations(ctx)
	if err != nil {
		return nil, err
	}

	chain := &ChainStats{}
	var succeeded int64

	for _, cfg := range cfgs {
		store, err := s.StoreStats(ctx, cfg.StoreID, window)
		if err != nil {
			return nil, err
		}
		chain.Stores = append(chain.Stores, *store)
		chain.TotalPending += store.PendingItems
		chain.TotalDeadLettered += store.DeadLetteredItems
		chain.UnresolvedConflicts += store.UnresolvedConflicts
		chain.SyncRuns += store.SyncRuns
		succeeded += store.SucceededRuns
	}

	if chain.SyncRuns > 0 {
		chain.SuccessRate = float64(succeeded) / float64(chain.SyncRuns)
	}

	return chain, nil
}

func (s *service) RecentLogs(ctx context.Context, storeID int, limit int) ([]domain.SyncLog, error) {
	return s.logs.FindByStore(ctx, storeID, limit)
}

func (s *service) PruneLogs(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.clock.Now().Add(-retention)
	deleted, err := s.logs.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.log.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("pruned sync logs")
	}
	return deleted, nil
}

func oldestCreatedAt(items []domain.SyncQueueItem) *time.Time {
	var oldest *time.Time
	for i := range items {
		created := items[i].CreatedAt
		if oldest == nil || created.Before(*oldest) {
			oldest = &created
		}
	}
	return oldest
}
