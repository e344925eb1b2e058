package domain

import (
	"context"
	"time"
)

// SyncCheckpoint is the last timestamp at which a store and HQ were known to
// agree on an entity's state. Conflict detection compares both sides' last
// modification against this value.
type SyncCheckpoint struct {
	ID           int64      `json:"id" gorm:"primaryKey;autoIncrement;column:id"`
	StoreID      int        `json:"store_id" gorm:"column:store_id;uniqueIndex:idx_ckpt_store_entity"`
	EntityType   EntityType `json:"entity_type" gorm:"column:entity_type;uniqueIndex:idx_ckpt_store_entity"`
	EntityID     string     `json:"entity_id" gorm:"column:entity_id;uniqueIndex:idx_ckpt_store_entity"`
	CheckpointAt time.Time  `json:"checkpoint_at" gorm:"column:checkpoint_at"`
	UpdatedAt    time.Time  `json:"updated_at" gorm:"column:updated_at"`
}

// SyncCheckpointRepo persists per-entity checkpoints.
type SyncCheckpointRepo interface {
	// Find returns the checkpoint for the entity, or nil when the entity has
	// never synced (treated as the zero time by callers).
	Find(ctx context.Context, storeID int, entityType EntityType, entityID string) (*SyncCheckpoint, error)
	// Advance moves the checkpoint forward, creating it when absent. A
	// checkpoint never moves backwards.
	Advance(ctx context.Context, storeID int, entityType EntityType, entityID string, to time.Time) error
}
