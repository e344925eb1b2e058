package database

import (
	"context"

	"github.com/storesync/storesync/internal/domain"
	"github.com/storesync/storesync/internal/logger"
	"github.com/storesync/storesync/pkg/errors"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

func NewSyncBatchRepo(log logger.Logger, db *DB) domain.SyncBatchRepo {
	return &SyncBatchRepo{
		log: log.With().Str("repo", "sync_batch").Logger(),
		db:  db,
	}
}

type SyncBatchRepo struct {
	log zerolog.Logger
	db  *DB
}

func (r *SyncBatchRepo) Store(ctx context.Context, batch *domain.SyncBatch) error {
	if err := r.db.Get().WithContext(ctx).Create(batch).Error; err != nil {
		r.log.Error().Err(err).Str("batchId", batch.ID).Msg("Failed to store batch")
		return errors.Wrap(err, "failed to store batch")
	}
	return nil
}

func (r *SyncBatchRepo) Update(ctx context.Context, batch *domain.SyncBatch) error {
	result := r.db.Get().WithContext(ctx).
		Model(&domain.SyncBatch{}).
		Where("id = ?", batch.ID).
		Updates(map[string]interface{}{
			"status":          batch.Status,
			"started_at":      batch.StartedAt,
			"completed_at":    batch.CompletedAt,
			"attempted_count": batch.AttemptedCount,
			"succeeded_count": batch.SucceededCount,
			"failed_count":    batch.FailedCount,
			"conflict_count":  batch.ConflictCount,
			"retry_count":     batch.RetryCount,
			"error_summary":   batch.ErrorSummary,
			"updated_at":      batch.UpdatedAt,
		})
	if result.Error != nil {
		r.log.Error().Err(result.Error).Str("batchId", batch.ID).Msg("Failed to update batch")
		return errors.Wrap(result.Error, "failed to update batch")
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *SyncBatchRepo) FindByID(ctx context.Context, id string) (*domain.SyncBatch, error) {
	var batch domain.SyncBatch
	result := r.db.Get().WithContext(ctx).First(&batch, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, errors.Wrap(result.Error, "failed to find batch")
	}
	return &batch, nil
}

func (r *SyncBatchRepo) FindInProgress(ctx context.Context, storeID int, entityType domain.EntityType) (*domain.SyncBatch, error) {
	var batch domain.SyncBatch
	result := r.db.Get().WithContext(ctx).
		Where("store_id = ? AND entity_type = ? AND status = ?", storeID, entityType, domain.SyncStatusInProgress).
		First(&batch)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(result.Error, "failed to find in-progress batch")
	}
	return &batch, nil
}

func (r *SyncBatchRepo) FindByStatus(ctx context.Context, storeID int, status domain.SyncStatus) ([]domain.SyncBatch, error) {
	var batches []domain.SyncBatch
	err := r.db.Get().WithContext(ctx).
		Where("store_id = ? AND status = ?", storeID, status).
		Order("created_at DESC").
		Find(&batches).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to find batches by status")
	}
	return batches, nil
}

func (r *SyncBatchRepo) LastSuccessful(ctx context.Context, storeID int) (*domain.SyncBatch, error) {
	var batch domain.SyncBatch
	result := r.db.Get().WithContext(ctx).
		Where("store_id = ? AND status = ?", storeID, domain.SyncStatusCompleted).
		Order("completed_at DESC").
		First(&batch)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(result.Error, "failed to find last successful batch")
	}
	return &batch, nil
}

func (r *SyncBatchRepo) LastSuccessfulForEntity(ctx context.Context, storeID int, entityType domain.EntityType) (*domain.SyncBatch, error) {
	var batch domain.SyncBatch
	result := r.db.Get().WithContext(ctx).
		Where("store_id = ? AND entity_type = ? AND status = ?", storeID, entityType, domain.SyncStatusCompleted).
		Order("completed_at DESC").
		First(&batch)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(result.Error, "failed to find last successful batch for entity")
	}
	return &batch, nil
}

// RequestCancel flips the cancellation flag. The batch processor reads it
// between records, never mid-record.
func (r *SyncBatchRepo) RequestCancel(ctx context.Context, id string) error {
	result := r.db.Get().WithContext(ctx).
		Model(&domain.SyncBatch{}).
		Where("id = ? AND status IN ?", id, []domain.SyncStatus{domain.SyncStatusPending, domain.SyncStatusInProgress}).
		Update("cancel_requested", true)
	if result.Error != nil {
		r.log.Error().Err(result.Error).Str("batchId", id).Msg("Failed to request batch cancel")
		return errors.Wrap(result.Error, "failed to request batch cancel")
	}
	if result.RowsAffected == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

func (r *SyncBatchRepo) CancelRequested(ctx context.Context, id string) (bool, error) {
	var batch domain.SyncBatch
	result := r.db.Get().WithContext(ctx).
		Select("cancel_requested").
		First(&batch, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return false, domain.ErrNotFound
		}
		return false, errors.Wrap(result.Error, "failed to read cancel flag")
	}
	return batch.CancelRequested, nil
}
