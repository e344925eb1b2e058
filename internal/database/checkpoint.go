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

func NewSyncCheckpointRepo(log logger.Logger, db *DB) domain.SyncCheckpointRepo {
	return &SyncCheckpointRepo{
		log: log.With().Str("repo", "sync_checkpoint").Logger(),
		db:  db,
	}
}

type SyncCheckpointRepo struct {
	log zerolog.Logger
	db  *DB
}

func (r *SyncCheckpointRepo) Find(ctx context.Context, storeID int, entityType domain.EntityType, entityID string) (*domain.SyncCheckpoint, error) {
	var ckpt domain.SyncCheckpoint
	result := r.db.Get().WithContext(ctx).
		Where("store_id = ? AND entity_type = ? AND entity_id = ?", storeID, entityType, entityID).
		First(&ckpt)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			// never synced; callers treat this as the zero time
			return nil, nil
		}
		return nil, errors.Wrap(result.Error, "failed to find checkpoint")
	}
	return &ckpt, nil
}

// Advance moves the checkpoint forward, inserting it when absent. The
// conditional update guarantees a checkpoint never moves backwards.
func (r *SyncCheckpointRepo) Advance(ctx context.Context, storeID int, entityType domain.EntityType, entityID string, to time.Time) error {
	db := r.db.Get().WithContext(ctx)

	result := db.Model(&domain.SyncCheckpoint{}).
		Where("store_id = ? AND entity_type = ? AND entity_id = ? AND checkpoint_at < ?",
			storeID, entityType, entityID, to).
		Updates(map[string]interface{}{
			"checkpoint_at": to,
			"updated_at":    to,
		})
	if result.Error != nil {
		r.log.Error().Err(result.Error).Str("entityId", entityID).Msg("Failed to advance checkpoint")
		return errors.Wrap(result.Error, "failed to advance checkpoint")
	}
	if result.RowsAffected > 0 {
		return nil
	}

	// nothing updated: either the row is missing or it is already ahead
	existing, err := r.Find(ctx, storeID, entityType, entityID)
	if err != nil {
		return err
	}
	if existing != nil {
		// already at or past the target; nothing to do
		return nil
	}

	ckpt := domain.SyncCheckpoint{
		StoreID:      storeID,
		EntityType:   entityType,
		EntityID:     entityID,
		CheckpointAt: to,
		UpdatedAt:    to,
	}
	if err := db.Create(&ckpt).Error; err != nil {
		r.log.Error().Err(err).Str("entityId", entityID).Msg("Failed to insert checkpoint")
		return errors.Wrap(err, "failed to insert checkpoint")
	}
	return nil
}
