package database

import (
	"context"
	"time"

	"github.com/storesync/storesync/internal/domain"
	"github.com/storesync/storesync/internal/logger"
	"github.com/storesync/storesync/pkg/errors"

	"github.com/rs/zerolog"
)

func NewSyncLogRepo(log logger.Logger, db *DB) domain.SyncLogRepo {
	return &SyncLogRepo{
		log: log.With().Str("repo", "sync_log").Logger(),
		db:  db,
	}
}

type SyncLogRepo struct {
	log zerolog.Logger
	db  *DB
}

func (r *SyncLogRepo) Append(ctx context.Context, entry *domain.SyncLog) error {
	if err := r.db.Get().WithContext(ctx).Create(entry).Error; err != nil {
		r.log.Error().Err(err).Str("operation", entry.Operation).Msg("Failed to append sync log entry")
		return errors.Wrap(err, "failed to append sync log entry")
	}
	return nil
}

func (r *SyncLogRepo) FindByStore(ctx context.Context, storeID int, limit int) ([]domain.SyncLog, error) {
	q := r.db.Get().WithContext(ctx).
		Where("store_id = ?", storeID).
		Order("timestamp DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var entries []domain.SyncLog
	if err := q.Find(&entries).Error; err != nil {
		return nil, errors.Wrap(err, "failed to find sync log entries")
	}
	return entries, nil
}

func (r *SyncLogRepo) FindByBatch(ctx context.Context, batchID string) ([]domain.SyncLog, error) {
	var entries []domain.SyncLog
	err := r.db.Get().WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("timestamp ASC").
		Find(&entries).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to find sync log entries for batch")
	}
	return entries, nil
}

func (r *SyncLogRepo) Stats(ctx context.Context, storeID int, since time.Time) (*domain.SyncLogStats, error) {
	var stats domain.SyncLogStats

	row := r.db.Get().WithContext(ctx).
		Model(&domain.SyncLog{}).
		Select("COUNT(*) AS total, SUM(CASE WHEN success THEN 1 ELSE 0 END) AS succeeded, COALESCE(AVG(duration_ms), 0) AS avg_duration_ms").
		Where("store_id = ? AND timestamp >= ?", storeID, since).
		Row()
	if err := row.Scan(&stats.Total, &stats.Succeeded, &stats.AvgDurationMS); err != nil {
		return nil, errors.Wrap(err, "failed to aggregate sync log stats")
	}
	return &stats, nil
}

func (r *SyncLogRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.Get().WithContext(ctx).
		Where("timestamp < ?", cutoff).
		Delete(&domain.SyncLog{})
	if result.Error != nil {
		r.log.Error().Err(result.Error).Time("cutoff", cutoff).Msg("Failed to prune sync log")
		return 0, errors.Wrap(result.Error, "failed to prune sync log")
	}
	return result.RowsAffected, nil
}
