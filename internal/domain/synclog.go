package domain

import (
	"context"
	"time"
)

// SyncLog is one append-only audit row per attempted operation. Rows are never
// mutated, only appended and periodically pruned.
type SyncLog struct {
	ID         int64      `json:"id" gorm:"primaryKey;autoIncrement;column:id"`
	StoreID    int        `json:"store_id" gorm:"column:store_id;index"`
	BatchID    *string    `json:"batch_id,omitempty" gorm:"column:batch_id;index"`
	Operation  string     `json:"operation" gorm:"column:operation"`
	EntityType EntityType `json:"entity_type" gorm:"column:entity_type"`
	Success    bool       `json:"success" gorm:"column:success"`
	DurationMS int64      `json:"duration_ms" gorm:"column:duration_ms"`
	Error      string     `json:"error" gorm:"column:error"`
	Timestamp  time.Time  `json:"timestamp" gorm:"column:timestamp;index"`
}

// SyncLogRepo appends and queries the audit trail.
type SyncLogRepo interface {
	Append(ctx context.Context, entry *SyncLog) error
	FindByStore(ctx context.Context, storeID int, limit int) ([]SyncLog, error)
	FindByBatch(ctx context.Context, batchID string) ([]SyncLog, error)
	// Stats returns aggregate counts and average duration for a store within
	// the window [since, now).
	Stats(ctx context.Context, storeID int, since time.Time) (*SyncLogStats, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SyncLogStats is the aggregate shape the monitoring service reads.
type SyncLogStats struct {
	Total         int64
	Succeeded     int64
	AvgDurationMS float64
}
