package domain

import (
	"context"
	"time"
)

// SyncBatch is one bounded synchronization run for a store and entity type.
// A store may have at most one InProgress batch per entity type; batches are
// immutable once Completed or Cancelled except for RetryCount.
type SyncBatch struct {
	ID              string        `json:"id" gorm:"primaryKey;column:id"`
	StoreID         int           `json:"store_id" gorm:"column:store_id;index:idx_batch_store_entity"`
	EntityType      EntityType    `json:"entity_type" gorm:"column:entity_type;index:idx_batch_store_entity"`
	Direction       SyncDirection `json:"direction" gorm:"column:direction"`
	Status          SyncStatus    `json:"status" gorm:"column:status;index"`
	StartedAt       *time.Time    `json:"started_at,omitempty" gorm:"column:started_at"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty" gorm:"column:completed_at"`
	AttemptedCount  int           `json:"attempted_count" gorm:"column:attempted_count"`
	SucceededCount  int           `json:"succeeded_count" gorm:"column:succeeded_count"`
	FailedCount     int           `json:"failed_count" gorm:"column:failed_count"`
	ConflictCount   int           `json:"conflict_count" gorm:"column:conflict_count"`
	RetryCount      int           `json:"retry_count" gorm:"column:retry_count"`
	CancelRequested bool          `json:"cancel_requested" gorm:"column:cancel_requested"`
	ErrorSummary    string        `json:"error_summary" gorm:"column:error_summary"`
	CreatedAt       time.Time     `json:"created_at" gorm:"column:created_at"`
	UpdatedAt       time.Time     `json:"updated_at" gorm:"column:updated_at"`
}

// Duration returns the wall time the batch ran for, or zero when unknown.
func (b *SyncBatch) Duration() time.Duration {
	if b.StartedAt == nil || b.CompletedAt == nil {
		return 0
	}
	return b.CompletedAt.Sub(*b.StartedAt)
}

// SyncBatchRepo persists batches.
type SyncBatchRepo interface {
	Store(ctx context.Context, batch *SyncBatch) error
	Update(ctx context.Context, batch *SyncBatch) error
	FindByID(ctx context.Context, id string) (*SyncBatch, error)
	// FindInProgress returns the InProgress batch for (store, entity type), or nil.
	FindInProgress(ctx context.Context, storeID int, entityType EntityType) (*SyncBatch, error)
	FindByStatus(ctx context.Context, storeID int, status SyncStatus) ([]SyncBatch, error)
	// LastSuccessful returns the most recently completed batch for a store
	// across all entity types, or nil when the store never synced.
	LastSuccessful(ctx context.Context, storeID int) (*SyncBatch, error)
	// LastSuccessfulForEntity narrows LastSuccessful to one entity type, for
	// download cutoffs that must not move when a different entity syncs.
	LastSuccessfulForEntity(ctx context.Context, storeID int, entityType EntityType) (*SyncBatch, error)
	// RequestCancel flips the cancellation flag checked between records.
	RequestCancel(ctx context.Context, id string) error
	// CancelRequested reports whether cancellation was requested for id.
	CancelRequested(ctx context.Context, id string) (bool, error)
}
