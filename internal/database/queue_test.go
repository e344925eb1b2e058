package database

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/storesync/storesync/internal/domain"
	"github.com/storesync/storesync/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestNewSyncQueueRepo(t *testing.T) {
	log := logger.Mock()
	db, _ := newMockDB(t)

	repo := NewSyncQueueRepo(log, db)
	assert.NotNil(t, repo)

	queueRepo, ok := repo.(*SyncQueueRepo)
	assert.True(t, ok, "NewSyncQueueRepo should return a *SyncQueueRepo type")
	assert.NotNil(t, queueRepo.db)
}

func TestSyncQueueRepo_ClaimInProgress(t *testing.T) {
	ctx := context.Background()
	log := logger.Mock()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("claims a pending item", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewSyncQueueRepo(log, db)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "sync_queue_items" SET "status"=$1,"updated_at"=$2 WHERE id = $3 AND status = $4`)).
			WithArgs(string(domain.SyncStatusInProgress), now, int64(7), string(domain.SyncStatusPending)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.ClaimInProgress(ctx, 7, now)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lost race returns stale state", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewSyncQueueRepo(log, db)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "sync_queue_items" SET "status"=$1,"updated_at"=$2 WHERE id = $3 AND status = $4`)).
			WithArgs(string(domain.SyncStatusInProgress), now, int64(7), string(domain.SyncStatusPending)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		err := repo.ClaimInProgress(ctx, 7, now)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrStaleState)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database error", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewSyncQueueRepo(log, db)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "sync_queue_items" SET "status"=$1,"updated_at"=$2 WHERE id = $3 AND status = $4`)).
			WithArgs(string(domain.SyncStatusInProgress), now, int64(7), string(domain.SyncStatusPending)).
			WillReturnError(sql.ErrConnDone)
		mock.ExpectRollback()

		err := repo.ClaimInProgress(ctx, 7, now)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to claim queue item")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSyncQueueRepo_FindPendingByEntity(t *testing.T) {
	ctx := context.Background()
	log := logger.Mock()

	t.Run("no pending item returns nil without error", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewSyncQueueRepo(log, db)

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "sync_queue_items" WHERE store_id = $1 AND entity_type = $2 AND entity_id = $3 AND status = $4 ORDER BY "sync_queue_items"."id" LIMIT $5`)).
			WithArgs(3, string(domain.EntityTypeProduct), "42", string(domain.SyncStatusPending), 1).
			WillReturnError(gorm.ErrRecordNotFound)

		item, err := repo.FindPendingByEntity(ctx, 3, domain.EntityTypeProduct, "42")
		require.NoError(t, err)
		assert.Nil(t, item)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("pending item found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewSyncQueueRepo(log, db)

		rows := sqlmock.NewRows([]string{"id", "store_id", "entity_type", "entity_id", "operation", "status"}).
			AddRow(int64(11), 3, string(domain.EntityTypeProduct), "42", string(domain.SyncOperationUpdate), string(domain.SyncStatusPending))
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "sync_queue_items" WHERE store_id = $1 AND entity_type = $2 AND entity_id = $3 AND status = $4 ORDER BY "sync_queue_items"."id" LIMIT $5`)).
			WithArgs(3, string(domain.EntityTypeProduct), "42", string(domain.SyncStatusPending), 1).
			WillReturnRows(rows)

		item, err := repo.FindPendingByEntity(ctx, 3, domain.EntityTypeProduct, "42")
		require.NoError(t, err)
		require.NotNil(t, item)
		assert.Equal(t, int64(11), item.ID)
		assert.Equal(t, domain.SyncOperationUpdate, item.Operation)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSyncQueueRepo_DeleteCompletedBefore(t *testing.T) {
	ctx := context.Background()
	log := logger.Mock()
	cutoff := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	db, mock := newMockDB(t)
	repo := NewSyncQueueRepo(log, db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "sync_queue_items" WHERE status = $1 AND updated_at < $2`)).
		WithArgs(string(domain.SyncStatusCompleted), cutoff).
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectCommit()

	deleted, err := repo.DeleteCompletedBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(5), deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}
