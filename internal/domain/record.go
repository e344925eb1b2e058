package domain

import (
	"context"
	"time"
)

// SyncRecord is the wire shape of one record inside a payload envelope.
type SyncRecord struct {
	EntityID     string        `json:"entity_id"`
	Operation    SyncOperation `json:"operation"`
	Data         []byte        `json:"data,omitempty"`
	LastModified time.Time     `json:"last_modified"`
}

// SyncPayload is the envelope exchanged with HQ, in either direction.
type SyncPayload struct {
	StoreID        int          `json:"store_id"`
	EntityType     EntityType   `json:"entity_type"`
	GeneratedAt    time.Time    `json:"generated_at"`
	SinceTimestamp *time.Time   `json:"since_timestamp,omitempty"`
	Records        []SyncRecord `json:"records"`
	Checksum       string       `json:"checksum"`
}

// RecordResult is the per-record outcome of applying a payload.
type RecordResult struct {
	EntityID string `json:"entity_id"`
	Applied  bool   `json:"applied"`
	Conflict bool   `json:"conflict"`
	Error    string `json:"error,omitempty"`
}

// ExchangeResult is what the transport brings back from HQ: the outcome of the
// uploaded records plus the download payload for the same entity type.
type ExchangeResult struct {
	Results  []RecordResult `json:"results"`
	Download *SyncPayload   `json:"download,omitempty"`
}

// RecordStore is the narrow persistence capability the sync core needs from
// the business-entity services: changed-since scans, point reads, and
// idempotent applies. It deliberately exposes nothing else.
type RecordStore interface {
	// ChangedSince returns records of entityType modified strictly after
	// since, capped at limit. A nil since means all records (full sync).
	ChangedSince(ctx context.Context, entityType EntityType, since *time.Time, limit int) ([]SyncRecord, error)
	// Get returns the current version of one record, or nil when absent.
	Get(ctx context.Context, entityType EntityType, entityID string) (*SyncRecord, error)
	// Apply writes a record (create/update/delete) idempotently.
	Apply(ctx context.Context, entityType EntityType, record SyncRecord) error
}
