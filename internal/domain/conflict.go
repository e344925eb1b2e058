package domain

import (
	"context"
	"time"
)

// SyncConflict records a divergence between local and remote state for one
// entity. Created only when both sides changed after the last common
// checkpoint; immutable once resolved.
type SyncConflict struct {
	ID               int64              `json:"id" gorm:"primaryKey;autoIncrement;column:id"`
	BatchID          string             `json:"batch_id" gorm:"column:batch_id;index"`
	StoreID          int                `json:"store_id" gorm:"column:store_id;index"`
	EntityType       EntityType         `json:"entity_type" gorm:"column:entity_type"`
	EntityID         string             `json:"entity_id" gorm:"column:entity_id"`
	LocalData        []byte             `json:"local_data" gorm:"column:local_data"`
	RemoteData       []byte             `json:"remote_data" gorm:"column:remote_data"`
	LocalModifiedAt  time.Time          `json:"local_modified_at" gorm:"column:local_modified_at"`
	RemoteModifiedAt time.Time          `json:"remote_modified_at" gorm:"column:remote_modified_at"`
	DetectedAt       time.Time          `json:"detected_at" gorm:"column:detected_at"`
	Resolution       ConflictResolution `json:"resolution" gorm:"column:resolution;index"`
	ResolvedBy       string             `json:"resolved_by" gorm:"column:resolved_by"`
	ResolvedAt       *time.Time         `json:"resolved_at,omitempty" gorm:"column:resolved_at"`
	Notes            string             `json:"notes" gorm:"column:notes"`
}

// Resolved reports whether the conflict has a final resolution.
func (c *SyncConflict) Resolved() bool {
	return c.Resolution != ConflictResolutionUnresolved
}

// SyncConflictRepo persists conflicts.
type SyncConflictRepo interface {
	Store(ctx context.Context, conflict *SyncConflict) (*SyncConflict, error)
	FindByID(ctx context.Context, id int64) (*SyncConflict, error)
	FindUnresolved(ctx context.Context, storeID int, entityType *EntityType) ([]SyncConflict, error)
	CountUnresolved(ctx context.Context, storeID int) (int64, error)
	// MarkResolved transitions an Unresolved conflict; returns
	// ErrAlreadyResolved when the row was already resolved.
	MarkResolved(ctx context.Context, id int64, resolution ConflictResolution, resolvedBy, notes string, resolvedAt time.Time) error
}
