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

func NewSyncConflictRepo(log logger.Logger, db *DB) domain.SyncConflictRepo {
	return &SyncConflictRepo{
		log: log.With().Str("repo", "sync_conflict").Logger(),
		db:  db,
	}
}

type SyncConflictRepo struct {
	log zerolog.Logger
	db  *DB
}

func (r *SyncConflictRepo) Store(ctx context.Context, conflict *domain.SyncConflict) (*domain.SyncConflict, error) {
	if err := r.db.Get().WithContext(ctx).Create(conflict).Error; err != nil {
		r.log.Error().Err(err).Str("entityId", conflict.EntityID).Msg("Failed to store conflict")
		return nil, errors.Wrap(err, "failed to store conflict")
	}
	return conflict, nil
}

func (r *SyncConflictRepo) FindByID(ctx context.Context, id int64) (*domain.SyncConflict, error) {
	var conflict domain.SyncConflict
	result := r.db.Get().WithContext(ctx).First(&conflict, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, errors.Wrap(result.Error, "failed to find conflict")
	}
	return &conflict, nil
}

func (r *SyncConflictRepo) FindUnresolved(ctx context.Context, storeID int, entityType *domain.EntityType) ([]domain.SyncConflict, error) {
	q := r.db.Get().WithContext(ctx).
		Where("store_id = ? AND resolution = ?", storeID, domain.ConflictResolutionUnresolved).
		Order("detected_at ASC")

	if entityType != nil {
		q = q.Where("entity_type = ?", *entityType)
	}

	var conflicts []domain.SyncConflict
	if err := q.Find(&conflicts).Error; err != nil {
		return nil, errors.Wrap(err, "failed to find unresolved conflicts")
	}
	return conflicts, nil
}

func (r *SyncConflictRepo) CountUnresolved(ctx context.Context, storeID int) (int64, error) {
	var count int64
	err := r.db.Get().WithContext(ctx).
		Model(&domain.SyncConflict{}).
		Where("store_id = ? AND resolution = ?", storeID, domain.ConflictResolutionUnresolved).
		Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(err, "failed to count unresolved conflicts")
	}
	return count, nil
}

// MarkResolved is conditional on the row still being Unresolved, so a conflict
// resolved once stays immutable.
func (r *SyncConflictRepo) MarkResolved(ctx context.Context, id int64, resolution domain.ConflictResolution, resolvedBy, notes string, resolvedAt time.Time) error {
	result := r.db.Get().WithContext(ctx).
		Model(&domain.SyncConflict{}).
		Where("id = ? AND resolution = ?", id, domain.ConflictResolutionUnresolved).
		Updates(map[string]interface{}{
			"resolution":  resolution,
			"resolved_by": resolvedBy,
			"notes":       notes,
			"resolved_at": resolvedAt,
		})
	if result.Error != nil {
		r.log.Error().Err(result.Error).Int64("id", id).Msg("Failed to mark conflict resolved")
		return errors.Wrap(result.Error, "failed to mark conflict resolved")
	}
	if result.RowsAffected == 0 {
		// row missing or already resolved; look up to tell the two apart
		var count int64
		if err := r.db.Get().WithContext(ctx).Model(&domain.SyncConflict{}).Where("id = ?", id).Count(&count).Error; err == nil && count == 0 {
			return domain.ErrNotFound
		}
		return domain.ErrAlreadyResolved
	}
	return nil
}
