package database

import (
	"context"
	"time"

	"github.com/storesync/storesync/internal/domain"
	"github.com/storesync/storesync/internal/logger"
	"github.com/storesync/storesync/pkg/errors"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

func NewSyncQueueRepo(log logger.Logger, db *DB) domain.SyncQueueRepo {
	return &SyncQueueRepo{
		log: log.With().Str("repo", "sync_queue").Logger(),
		db:  db,
	}
}

type SyncQueueRepo struct {
	log zerolog.Logger
	db  *DB
}

func (r *SyncQueueRepo) Store(ctx context.Context, item *domain.SyncQueueItem) (*domain.SyncQueueItem, error) {
	if err := r.db.Get().WithContext(ctx).Create(item).Error; err != nil {
		r.log.Error().Err(err).Str("entityType", string(item.EntityType)).Str("entityId", item.EntityID).Msg("Failed to store queue item")
		return nil, errors.Wrap(err, "failed to store queue item")
	}
	return item, nil
}

func (r *SyncQueueRepo) Update(ctx context.Context, item *domain.SyncQueueItem) error {
	result := r.db.Get().WithContext(ctx).
		Model(&domain.SyncQueueItem{}).
		Where("id = ?", item.ID).
		Updates(map[string]interface{}{
			"operation":       item.Operation,
			"priority":        item.Priority,
			"payload":         item.Payload,
			"status":          item.Status,
			"retry_count":     item.RetryCount,
			"last_error":      item.LastError,
			"next_attempt_at": item.NextAttemptAt,
			"updated_at":      item.UpdatedAt,
		})
	if result.Error != nil {
		r.log.Error().Err(result.Error).Int64("id", item.ID).Msg("Failed to update queue item")
		return errors.Wrap(result.Error, "failed to update queue item")
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *SyncQueueRepo) FindByID(ctx context.Context, id int64) (*domain.SyncQueueItem, error) {
	var item domain.SyncQueueItem
	result := r.db.Get().WithContext(ctx).First(&item, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, errors.Wrap(result.Error, "failed to find queue item")
	}
	return &item, nil
}

func (r *SyncQueueRepo) FindPendingByEntity(ctx context.Context, storeID int, entityType domain.EntityType, entityID string) (*domain.SyncQueueItem, error) {
	var item domain.SyncQueueItem
	result := r.db.Get().WithContext(ctx).
		Where("store_id = ? AND entity_type = ? AND entity_id = ? AND status = ?",
			storeID, entityType, entityID, domain.SyncStatusPending).
		First(&item)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			// no pending item is not an error here
			return nil, nil
		}
		return nil, errors.Wrap(result.Error, "failed to find pending queue item")
	}
	return &item, nil
}

func (r *SyncQueueRepo) FindReady(ctx context.Context, filter domain.QueueFilter, now time.Time) ([]domain.SyncQueueItem, error) {
	q := r.db.Get().WithContext(ctx).
		Where("store_id = ? AND status = ?", filter.StoreID, domain.SyncStatusPending).
		Where("next_attempt_at IS NULL OR next_attempt_at <= ?", now).
		Order("priority DESC").
		Order("created_at ASC")

	if filter.EntityType != nil {
		q = q.Where("entity_type = ?", *filter.EntityType)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var items []domain.SyncQueueItem
	if err := q.Find(&items).Error; err != nil {
		r.log.Error().Err(err).Int("storeId", filter.StoreID).Msg("Failed to find ready queue items")
		return nil, errors.Wrap(err, "failed to find ready queue items")
	}
	return items, nil
}

func (r *SyncQueueRepo) FindByStatus(ctx context.Context, storeID int, status domain.SyncStatus) ([]domain.SyncQueueItem, error) {
	var items []domain.SyncQueueItem
	err := r.db.Get().WithContext(ctx).
		Where("store_id = ? AND status = ?", storeID, status).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to find queue items by status")
	}
	return items, nil
}

// ClaimInProgress is the conditional claim: update status to InProgress only
// where it is still Pending. Racing workers observe exactly one winner; the
// loser gets ErrStaleState.
func (r *SyncQueueRepo) ClaimInProgress(ctx context.Context, id int64, now time.Time) error {
	result := r.db.Get().WithContext(ctx).
		Model(&domain.SyncQueueItem{}).
		Where("id = ? AND status = ?", id, domain.SyncStatusPending).
		Updates(map[string]interface{}{
			"status":     domain.SyncStatusInProgress,
			"updated_at": now,
		})
	if result.Error != nil {
		r.log.Error().Err(result.Error).Int64("id", id).Msg("Failed to claim queue item")
		return errors.Wrap(result.Error, "failed to claim queue item")
	}
	if result.RowsAffected == 0 {
		return domain.ErrStaleState
	}
	return nil
}

func (r *SyncQueueRepo) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.Get().WithContext(ctx).
		Where("status = ? AND updated_at < ?", domain.SyncStatusCompleted, cutoff).
		Delete(&domain.SyncQueueItem{})
	if result.Error != nil {
		r.log.Error().Err(result.Error).Time("cutoff", cutoff).Msg("Failed to delete completed queue items")
		return 0, errors.Wrap(result.Error, "failed to delete completed queue items")
	}
	return result.RowsAffected, nil
}
