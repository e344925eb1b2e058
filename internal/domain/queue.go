package domain

import (
	"context"
	"time"
)

// SyncQueueItem is one desired synchronization action for a single entity.
// At most one non-terminal item may exist per (store, entity type, entity id);
// rapid local changes collapse into the existing Pending item instead of
// amplifying queue work.
type SyncQueueItem struct {
	ID            int64         `json:"id" gorm:"primaryKey;autoIncrement;column:id"`
	StoreID       int           `json:"store_id" gorm:"column:store_id;index:idx_queue_store_entity"`
	EntityType    EntityType    `json:"entity_type" gorm:"column:entity_type;index:idx_queue_store_entity"`
	EntityID      string        `json:"entity_id" gorm:"column:entity_id;index:idx_queue_store_entity"`
	Operation     SyncOperation `json:"operation" gorm:"column:operation"`
	Priority      SyncPriority  `json:"priority" gorm:"column:priority"`
	Payload       []byte        `json:"payload,omitempty" gorm:"column:payload"`
	Status        SyncStatus    `json:"status" gorm:"column:status;index"`
	RetryCount    int           `json:"retry_count" gorm:"column:retry_count"`
	LastError     string        `json:"last_error" gorm:"column:last_error"`
	CreatedAt     time.Time     `json:"created_at" gorm:"column:created_at"`
	UpdatedAt     time.Time     `json:"updated_at" gorm:"column:updated_at"`
	NextAttemptAt *time.Time    `json:"next_attempt_at,omitempty" gorm:"column:next_attempt_at"`
}

// QueueFilter narrows queue queries.
type QueueFilter struct {
	StoreID    int
	EntityType *EntityType
	Limit      int
}

// SyncQueueRepo persists queue items. Claim semantics: MarkInProgress is a
// conditional update (status=IN_PROGRESS where status=PENDING) so that two
// racing workers observe exactly one winner.
type SyncQueueRepo interface {
	Store(ctx context.Context, item *SyncQueueItem) (*SyncQueueItem, error)
	Update(ctx context.Context, item *SyncQueueItem) error
	FindByID(ctx context.Context, id int64) (*SyncQueueItem, error)
	// FindPendingByEntity returns the Pending item for (store, type, id), or nil.
	FindPendingByEntity(ctx context.Context, storeID int, entityType EntityType, entityID string) (*SyncQueueItem, error)
	// FindReady returns Pending items whose next attempt is not in the future,
	// ordered by priority descending then created-at ascending.
	FindReady(ctx context.Context, filter QueueFilter, now time.Time) ([]SyncQueueItem, error)
	FindByStatus(ctx context.Context, storeID int, status SyncStatus) ([]SyncQueueItem, error)
	// ClaimInProgress transitions id from Pending to InProgress; returns
	// ErrStaleState if the item was not Pending anymore.
	ClaimInProgress(ctx context.Context, id int64, now time.Time) error
	// DeleteCompletedBefore garbage-collects Completed items older than cutoff.
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
