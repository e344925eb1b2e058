package database

import (
	"context"
	"time"

	"github.com/storesync/storesync/internal/domain"
	"github.com/storesync/storesync/internal/logger"
	"github.com/storesync/storesync/pkg/errors"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecordSnapshot is the backing row for the narrow record-store capability:
// the latest known state of one business record, enough for changed-since
// scans, point reads and idempotent applies. Defined internally as it is an
// implementation detail of this repo.
type RecordSnapshot struct {
	EntityType   domain.EntityType `gorm:"primaryKey;column:entity_type"`
	EntityID     string            `gorm:"primaryKey;column:entity_id"`
	Data         []byte            `gorm:"column:data"`
	LastModified time.Time         `gorm:"column:last_modified;index"`
	Deleted      bool              `gorm:"column:deleted"`
}

// TableName specifies the table name for GORM.
func (RecordSnapshot) TableName() string {
	return "record_snapshots"
}

func NewRecordStore(log logger.Logger, db *DB) domain.RecordStore {
	return &RecordStore{
		log: log.With().Str("repo", "record_store").Logger(),
		db:  db,
	}
}

type RecordStore struct {
	log zerolog.Logger
	db  *DB
}

func (r *RecordStore) ChangedSince(ctx context.Context, entityType domain.EntityType, since *time.Time, limit int) ([]domain.SyncRecord, error) {
	q := r.db.Get().WithContext(ctx).
		Model(&RecordSnapshot{}).
		Where("entity_type = ?", entityType).
		Order("last_modified ASC")

	if since != nil {
		q = q.Where("last_modified > ?", *since)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []RecordSnapshot
	if err := q.Find(&rows).Error; err != nil {
		r.log.Error().Err(err).Str("entityType", string(entityType)).Msg("Failed to scan changed records")
		return nil, errors.Wrap(err, "failed to scan changed records")
	}

	records := make([]domain.SyncRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, snapshotToRecord(row))
	}
	return records, nil
}

func (r *RecordStore) Get(ctx context.Context, entityType domain.EntityType, entityID string) (*domain.SyncRecord, error) {
	var row RecordSnapshot
	result := r.db.Get().WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		First(&row)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(result.Error, "failed to get record")
	}
	record := snapshotToRecord(row)
	return &record, nil
}

// Apply upserts the record; deletes are tombstones so changed-since scans can
// propagate them.
func (r *RecordStore) Apply(ctx context.Context, entityType domain.EntityType, record domain.SyncRecord) error {
	row := RecordSnapshot{
		EntityType:   entityType,
		EntityID:     record.EntityID,
		Data:         record.Data,
		LastModified: record.LastModified,
		Deleted:      record.Operation == domain.SyncOperationDelete,
	}

	err := r.db.Get().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "entity_type"}, {Name: "entity_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "last_modified", "deleted"}),
		}).
		Create(&row).Error
	if err != nil {
		r.log.Error().Err(err).Str("entityId", record.EntityID).Msg("Failed to apply record")
		return errors.Wrap(err, "failed to apply record")
	}
	return nil
}

func snapshotToRecord(row RecordSnapshot) domain.SyncRecord {
	op := domain.SyncOperationUpdate
	if row.Deleted {
		op = domain.SyncOperationDelete
	}
	return domain.SyncRecord{
		EntityID:     row.EntityID,
		Operation:    op,
		Data:         row.Data,
		LastModified: row.LastModified,
	}
}
