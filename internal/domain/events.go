package domain

import "time"

// EventBus topics emitted by the batch processor. The host process (dashboard,
// alerting) subscribes; listeners never block the sync path.
const (
	EventBatchStarted     = "sync:batch:started"
	EventBatchCompleted   = "sync:batch:completed"
	EventBatchFailed      = "sync:batch:failed"
	EventConflictDetected = "sync:conflict:detected"
)

// BatchEvent is the payload for batch lifecycle topics.
type BatchEvent struct {
	BatchID    string
	StoreID    int
	EntityType EntityType
	Direction  SyncDirection
	Status     SyncStatus
	Attempted  int
	Succeeded  int
	Failed     int
	Conflicts  int
	Timestamp  time.Time
}

// ConflictEvent is the payload for EventConflictDetected.
type ConflictEvent struct {
	ConflictID int64
	BatchID    string
	StoreID    int
	EntityType EntityType
	EntityID   string
	Timestamp  time.Time
}
