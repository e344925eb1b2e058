package stats

import (
	"context"
	"testing"
	"time"

	"github.com/storesync/storesync/internal/batch"
	"github.com/storesync/storesync/internal/conflict"
	"github.com/storesync/storesync/internal/domain"
	"github.com/storesync/storesync/internal/logger"
	"github.com/storesync/storesync/internal/queue"
	"github.com/storesync/storesync/internal/rules"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubs embed the service interfaces and override only what StoreStats reads

type stubQueue struct {
	queue.Service
	pending map[int][]domain.SyncQueueItem
	failed  map[int][]domain.SyncQueueItem
}

func (s stubQueue) GetPendingItems(_ context.Context, storeID int) ([]domain.SyncQueueItem, error) {
	return s.pending[storeID], nil
}

func (s stubQueue) GetFailedItems(_ context.Context, storeID int) ([]domain.SyncQueueItem, error) {
	return s.failed[storeID], nil
}

type stubConflicts struct {
	conflict.Service
	unresolved map[int]int64
}

func (s stubConflicts) CountUnresolved(_ context.Context, storeID int) (int64, error) {
	return s.unresolved[storeID], nil
}

type stubBatches struct {
	batch.Service
	last map[int]*domain.SyncBatch
}

func (s stubBatches) LastSuccessful(_ context.Context, storeID int) (*domain.SyncBatch, error) {
	return s.last[storeID], nil
}

type stubRules struct {
	rules.Service
	cfgs []domain.SyncConfiguration
}

func (s stubRules) StoreEnabled(_ context.Context, storeID int) (bool, error) {
	for _, cfg := range s.cfgs {
		if cfg.StoreID == storeID {
			return cfg.Enabled, nil
		}
	}
	return false, nil
}

func (s stubRules) ListConfigurations(_ context.Context) ([]domain.SyncConfiguration, error) {
	return s.cfgs, nil
}

type stubLogRepo struct {
	domain.SyncLogRepo
	stats   map[int]*domain.SyncLogStats
	deleted int64
}

func (s *stubLogRepo) Stats(_ context.Context, storeID int, _ time.Time) (*domain.SyncLogStats, error) {
	if st, ok := s.stats[storeID]; ok {
		return st, nil
	}
	return &domain.SyncLogStats{}, nil
}

func (s *stubLogRepo) DeleteBefore(_ context.Context, _ time.Time) (int64, error) {
	return s.deleted, nil
}

func TestService_StoreStats(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lastSync := now.Add(-5 * time.Minute)

	svc := NewService(
		logger.Mock(),
		&stubLogRepo{stats: map[int]*domain.SyncLogStats{
			1: {Total: 10, Succeeded: 9, AvgDurationMS: 120.5},
		}},
		stubQueue{
			pending: map[int][]domain.SyncQueueItem{1: {
				{CreatedAt: now.Add(-30 * time.Minute)},
				{CreatedAt: now.Add(-10 * time.Minute)},
				{CreatedAt: now.Add(-1 * time.Minute)},
			}},
			failed: map[int][]domain.SyncQueueItem{1: make([]domain.SyncQueueItem, 1)},
		},
		stubConflicts{unresolved: map[int]int64{1: 2}},
		stubBatches{last: map[int]*domain.SyncBatch{
			1: {ID: "b-1", Status: domain.SyncStatusCompleted, CompletedAt: &lastSync},
		}},
		stubRules{cfgs: []domain.SyncConfiguration{{StoreID: 1, Enabled: true, IntervalMinutes: 15}}},
		domain.FixedClock{T: now},
	)

	got, err := svc.StoreStats(context.Background(), 1, time.Hour)
	require.NoError(t, err)

	assert.True(t, got.Enabled)
	assert.Equal(t, 3, got.PendingItems)
	assert.Equal(t, "30 minutes ago", got.OldestPendingAge)
	assert.Equal(t, 1, got.DeadLetteredItems)
	assert.Equal(t, int64(2), got.UnresolvedConflicts)
	assert.Equal(t, int64(10), got.SyncRuns)
	assert.InDelta(t, 0.9, got.SuccessRate, 1e-9)
	assert.InDelta(t, 120.5, got.AvgDurationMS, 1e-9)
	require.NotNil(t, got.LastSyncAt)
	assert.Equal(t, lastSync, *got.LastSyncAt)
	assert.Equal(t, "5 minutes ago", got.LastSyncAge)
}

func TestService_StoreStats_NeverSynced(t *testing.T) {
	t.Parallel()

	svc := NewService(
		logger.Mock(),
		&stubLogRepo{},
		stubQueue{},
		stubConflicts{},
		stubBatches{},
		stubRules{},
		domain.FixedClock{T: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	)

	got, err := svc.StoreStats(context.Background(), 7, time.Hour)
	require.NoError(t, err)

	assert.False(t, got.Enabled)
	assert.Zero(t, got.SyncRuns)
	assert.Zero(t, got.SuccessRate)
	assert.Nil(t, got.LastSyncAt)
	assert.Equal(t, "never", got.LastSyncAge)
}

func TestService_ChainStats_RollsUpStores(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	svc := NewService(
		logger.Mock(),
		&stubLogRepo{stats: map[int]*domain.SyncLogStats{
			1: {Total: 8, Succeeded: 8},
			2: {Total: 2, Succeeded: 1},
		}},
		stubQueue{
			pending: map[int][]domain.SyncQueueItem{
				1: make([]domain.SyncQueueItem, 2),
				2: make([]domain.SyncQueueItem, 5),
			},
			failed: map[int][]domain.SyncQueueItem{2: make([]domain.SyncQueueItem, 1)},
		},
		stubConflicts{unresolved: map[int]int64{1: 1, 2: 3}},
		stubBatches{},
		stubRules{cfgs: []domain.SyncConfiguration{
			{StoreID: 1, Enabled: true, IntervalMinutes: 15},
			{StoreID: 2, Enabled: true, IntervalMinutes: 30},
		}},
		domain.FixedClock{T: now},
	)

	got, err := svc.ChainStats(context.Background(), time.Hour)
	require.NoError(t, err)

	require.Len(t, got.Stores, 2)
	assert.Equal(t, 7, got.TotalPending)
	assert.Equal(t, 1, got.TotalDeadLettered)
	assert.Equal(t, int64(4), got.UnresolvedConflicts)
	assert.Equal(t, int64(10), got.SyncRuns)
	assert.InDelta(t, 0.9, got.SuccessRate, 1e-9)
}

func TestService_PruneLogs(t *testing.T) {
	t.Parallel()

	svc := NewService(
		logger.Mock(),
		&stubLogRepo{deleted: 42},
		stubQueue{},
		stubConflicts{},
		stubBatches{},
		stubRules{},
		domain.FixedClock{T: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	)

	deleted, err := svc.PruneLogs(context.Background(), 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(42), deleted)
}
