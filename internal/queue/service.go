// Package queue owns the per-store backlog of pending synchronization
// actions: idempotent enqueue with operation collapsing, priority-ordered
// dequeue, guarded status transitions and dead-letter handling.
package queue

import (
	"context"
	"time"

	"github.com/storesync/storesync/internal/domain"
	"github.com/storesync/storesync/internal/logger"
	"github.com/storesync/storesync/internal/retry"
	"github.com/storesync/storesync/pkg/errors"

	"github.com/rs/zerolog"
)

// EnqueueRequest describes one desired sync action.
type EnqueueRequest struct {
	StoreID    int
	EntityType domain.EntityType
	EntityID   string
	Operation  domain.SyncOperation
	Priority   domain.SyncPriority
	Payload    []byte
}

type Service interface {
	// Enqueue records a sync intent. If a Pending item already exists for the
	// same (store, entity type, entity id) it is updated in place, with
	// operations collapsed, instead of duplicated.
	Enqueue(ctx context.Context, req EnqueueRequest) (*domain.SyncQueueItem, error)
	// Dequeue returns up to limit ready items ordered by priority descending
	// then created-at ascending. InProgress items and items whose next
	// attempt lies in the future are excluded.
	Dequeue(ctx context.Context, storeID int, entityType *domain.EntityType, limit int) ([]domain.SyncQueueItem, error)
	// MarkInProgress claims an item; exactly one of two racing claims wins,
	// the loser gets ErrStaleState.
	MarkInProgress(ctx context.Context, id int64) error
	MarkCompleted(ctx context.Context, id int64) error
	// MarkFailed increments the retry count and schedules the next attempt
	// via the retry policy; once the budget is exhausted the item becomes
	// terminally Failed and only manual retry can resurrect it.
	MarkFailed(ctx context.Context, id int64, errMsg string) (*domain.SyncQueueItem, error)
	// Release returns a claimed item to Pending without consuming retry
	// budget, for rounds that stop before the item was ever sent.
	Release(ctx context.Context, id int64) error
	// Cancel is only valid while the item is Pending.
	Cancel(ctx context.Context, id int64) error
	GetPendingItems(ctx context.Context, storeID int) ([]domain.SyncQueueItem, error)
	// GetFailedItems is the dead-letter query.
	GetFailedItems(ctx context.Context, storeID int) ([]domain.SyncQueueItem, error)
	// RetryItem resets a terminally Failed item back to Pending with a fresh
	// retry budget.
	RetryItem(ctx context.Context, id int64) error
	RetryFailedItems(ctx context.Context, storeID int) (int, error)
	// CleanupCompleted garbage-collects Completed items older than retention.
	CleanupCompleted(ctx context.Context, retention time.Duration) (int64, error)
}

func NewService(log logger.Logger, repo domain.SyncQueueRepo, policy retry.Policy, clock domain.Clock) Service {
	return &service{
		log:    log.With().Str("module", "queue").Logger(),
		repo:   repo,
		policy: policy,
		clock:  clock,
	}
}

type service struct {
	log    zerolog.Logger
	repo   domain.SyncQueueRepo
	policy retry.Policy
	clock  domain.Clock
}

func (s *service) Enqueue(ctx context.Context, req EnqueueRequest) (*domain.SyncQueueItem, error) {
	if !req.EntityType.Valid() {
		return nil, errors.Wrap(domain.ErrValidation, "unknown entity type: %s", req.EntityType)
	}
	if req.EntityID == "" {
		return nil, errors.Wrap(domain.ErrValidation, "entity id is required")
	}

	now := s.clock.Now()

	existing, err := s.repo.FindPendingByEntity(ctx, req.StoreID, req.EntityType, req.EntityID)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		existing.Operation = collapseOperation(existing.Operation, req.Operation)
		existing.Payload = req.Payload
		if req.Priority > existing.Priority {
			existing.Priority = req.Priority
		}
		existing.UpdatedAt = now

		if err := s.repo.Update(ctx, existing); err != nil {
			return nil, err
		}

		s.log.Debug().
			Int64("id", existing.ID).
			Str("entityType", string(req.EntityType)).
			Str("entityId", req.EntityID).
			Str("operation", string(existing.Operation)).
			Msg("collapsed enqueue into existing pending item")

		return existing, nil
	}

	item := &domain.SyncQueueItem{
		StoreID:    req.StoreID,
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		Operation:  req.Operation,
		Priority:   req.Priority,
		Payload:    req.Payload,
		Status:     domain.SyncStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	stored, err := s.repo.Store(ctx, item)
	if err != nil {
		return nil, err
	}

	s.log.Debug().
		Int64("id", stored.ID).
		Str("entityType", string(req.EntityType)).
		Str("entityId", req.EntityID).
		Str("operation", string(req.Operation)).
		Msg("enqueued sync item")

	return stored, nil
}

// collapseOperation merges a new intent into an existing pending one. A
// record created and then updated before it ever reached HQ is still a
// create; anything followed by a delete is a delete; a delete followed by a
// re-create becomes the new operation.
func collapseOperation(existing, incoming domain.SyncOperation) domain.SyncOperation {
	if existing == domain.SyncOperationCreate && incoming == domain.SyncOperationUpdate {
		return domain.SyncOperationCreate
	}
	return incoming
}

func (s *service) Dequeue(ctx context.Context, storeID int, entityType *domain.EntityType, limit int) ([]domain.SyncQueueItem, error) {
	return s.repo.FindReady(ctx, domain.QueueFilter{
		StoreID:    storeID,
		EntityType: entityType,
		Limit:      limit,
	}, s.clock.Now())
}

func (s *service) MarkInProgress(ctx context.Context, id int64) error {
	if err := s.repo.ClaimInProgress(ctx, id, s.clock.Now()); err != nil {
		if errors.Is(err, domain.ErrStaleState) {
			s.log.Debug().Int64("id", id).Msg("lost claim race for queue item")
		}
		return err
	}
	return nil
}

func (s *service) MarkCompleted(ctx context.Context, id int64) error {
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if item.Status != domain.SyncStatusInProgress {
		return errors.Wrap(domain.ErrInvalidTransition, "cannot complete item %d in status %s", id, item.Status)
	}

	item.Status = domain.SyncStatusCompleted
	item.LastError = ""
	item.NextAttemptAt = nil
	item.UpdatedAt = s.clock.Now()
	return s.repo.Update(ctx, item)
}

func (s *service) MarkFailed(ctx context.Context, id int64, errMsg string) (*domain.SyncQueueItem, error) {
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status != domain.SyncStatusInProgress && item.Status != domain.SyncStatusPending {
		return nil, errors.Wrap(domain.ErrInvalidTransition, "cannot fail item %d in status %s", id, item.Status)
	}

	now := s.clock.Now()
	item.RetryCount++
	item.LastError = errMsg
	item.UpdatedAt = now

	if s.policy.Exhausted(item.RetryCount) {
		// dead-letter: only an explicit manual retry can bring it back
		item.Status = domain.SyncStatusFailed
		item.NextAttemptAt = nil

		s.log.Warn().
			Int64("id", id).
			Int("retryCount", item.RetryCount).
			Str("error", errMsg).
			Msg("queue item exhausted retry budget, dead-lettered")
	} else {
		next := s.policy.NextAttemptAt(now, item.RetryCount)
		item.Status = domain.SyncStatusPending
		item.NextAttemptAt = &next

		s.log.Debug().
			Int64("id", id).
			Int("retryCount", item.RetryCount).
			Time("nextAttemptAt", next).
			Msg("queue item scheduled for retry")
	}

	if err := s.repo.Update(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *service) Release(ctx context.Context, id int64) error {
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if item.Status != domain.SyncStatusInProgress {
		return errors.Wrap(domain.ErrInvalidTransition, "cannot release item %d in status %s", id, item.Status)
	}

	item.Status = domain.SyncStatusPending
	item.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, item); err != nil {
		return err
	}

	s.log.Debug().Int64("id", id).Msg("released claimed queue item back to pending")
	return nil
}

func (s *service) Cancel(ctx context.Context, id int64) error {
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if item.Status != domain.SyncStatusPending {
		return errors.Wrap(domain.ErrInvalidTransition, "cannot cancel item %d in status %s", id, item.Status)
	}

	item.Status = domain.SyncStatusCancelled
	item.UpdatedAt = s.clock.Now()
	return s.repo.Update(ctx, item)
}

func (s *service) GetPendingItems(ctx context.Context, storeID int) ([]domain.SyncQueueItem, error) {
	return s.repo.FindByStatus(ctx, storeID, domain.SyncStatusPending)
}

func (s *service) GetFailedItems(ctx context.Context, storeID int) ([]domain.SyncQueueItem, error) {
	return s.repo.FindByStatus(ctx, storeID, domain.SyncStatusFailed)
}

func (s *service) RetryItem(ctx context.Context, id int64) error {
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if item.Status != domain.SyncStatusFailed {
		return errors.Wrap(domain.ErrInvalidTransition, "cannot retry item %d in status %s", id, item.Status)
	}

	item.Status = domain.SyncStatusPending
	item.RetryCount = 0
	item.LastError = ""
	item.NextAttemptAt = nil
	item.UpdatedAt = s.clock.Now()

	if err := s.repo.Update(ctx, item); err != nil {
		return err
	}

	s.log.Info().Int64("id", id).Msg("dead-lettered item manually re-queued")
	return nil
}

func (s *service) RetryFailedItems(ctx context.Context, storeID int) (int, error) {
	items, err := s.repo.FindByStatus(ctx, storeID, domain.SyncStatusFailed)
	if err != nil {
		return 0, err
	}

	retried := 0
	for _, item := range items {
		if err := s.RetryItem(ctx, item.ID); err != nil {
			s.log.Error().Err(err).Int64("id", item.ID).Msg("failed to retry dead-lettered item")
			continue
		}
		retried++
	}
	return retried, nil
}

func (s *service) CleanupCompleted(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.clock.Now().Add(-retention)
	deleted, err := s.repo.DeleteCompletedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.log.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("cleaned up completed queue items")
	}
	return deleted, nil
}
