// Package conflict detects divergence between a store's record and HQ's copy
// of the same record, and resolves it either automatically (last-write-wins)
// or through an operator decision.
package conflict

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/storesync/storesync/internal/domain"
	"github.com/storesync/storesync/internal/logger"
	"github.com/storesync/storesync/internal/queue"
	"github.com/storesync/storesync/pkg/errors"

	"github.com/asaskevich/EventBus"
	"github.com/rs/zerolog"
)

// Outcome is the result of comparing both sides of a record against their
// last common checkpoint.
type Outcome int

const (
	// OutcomeInSync means both sides hold the same value.
	OutcomeInSync Outcome = iota
	// OutcomeLocalWins means only the store changed since the checkpoint.
	OutcomeLocalWins
	// OutcomeRemoteWins means only HQ changed since the checkpoint.
	OutcomeRemoteWins
	// OutcomeConflict means both sides changed since the checkpoint and the
	// values differ.
	OutcomeConflict
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInSync:
		return "in-sync"
	case OutcomeLocalWins:
		return "local-wins"
	case OutcomeRemoteWins:
		return "remote-wins"
	case OutcomeConflict:
		return "conflict"
	}
	return "unknown"
}

// Version is one side's view of a record.
type Version struct {
	Data       []byte
	ModifiedAt time.Time
}

// Detect applies the divergence truth table. A nil checkpoint means the
// entity never synced, so any modification counts as "after checkpoint".
// Equal values are in sync regardless of timestamps. Differing values where
// neither side moved past the checkpoint should be impossible; it is reported
// as a conflict so a human looks at it.
func Detect(local, remote Version, checkpoint *time.Time) Outcome {
	if bytes.Equal(local.Data, remote.Data) {
		return OutcomeInSync
	}

	localChanged := checkpoint == nil || local.ModifiedAt.After(*checkpoint)
	remoteChanged := checkpoint == nil || remote.ModifiedAt.After(*checkpoint)

	switch {
	case localChanged && remoteChanged:
		return OutcomeConflict
	case localChanged:
		return OutcomeLocalWins
	case remoteChanged:
		return OutcomeRemoteWins
	default:
		return OutcomeConflict
	}
}

// ResolveRequest carries an operator's (or the LWW policy's) decision.
type ResolveRequest struct {
	ID         int64
	Resolution domain.ConflictResolution
	ResolvedBy string
	Notes      string
	// MergedData is the final value for Merged resolutions; required there,
	// optional for ManuallyResolved.
	MergedData []byte
}

// BulkResult reports the outcome of one conflict in a bulk resolution.
type BulkResult struct {
	ID    int64  `json:"id"`
	Error string `json:"error,omitempty"`
}

type Service interface {
	// Record persists a freshly detected conflict and announces it on the bus.
	Record(ctx context.Context, conflict *domain.SyncConflict) (*domain.SyncConflict, error)
	// AutoResolve persists a freshly detected conflict and immediately
	// applies last-write-wins: the side with the later modification
	// timestamp wins, HQ on a tie. The conflict is never announced on the
	// bus; the stored row is only the audit trail of the automatic choice.
	AutoResolve(ctx context.Context, conflict *domain.SyncConflict) (*domain.SyncConflict, error)
	// Resolve applies a resolution decision. Resolved conflicts are
	// immutable; a second resolution attempt returns ErrAlreadyResolved.
	Resolve(ctx context.Context, req ResolveRequest) (*domain.SyncConflict, error)
	BulkResolve(ctx context.Context, ids []int64, resolution domain.ConflictResolution, resolvedBy string) []BulkResult
	Get(ctx context.Context, id int64) (*domain.SyncConflict, error)
	GetUnresolved(ctx context.Context, storeID int, entityType *domain.EntityType) ([]domain.SyncConflict, error)
	CountUnresolved(ctx context.Context, storeID int) (int64, error)
}

func NewService(log logger.Logger, repo domain.SyncConflictRepo, checkpoints domain.SyncCheckpointRepo, records domain.RecordStore, queueSvc queue.Service, bus EventBus.Bus, clock domain.Clock) Service {
	return &service{
		log:         log.With().Str("module", "conflict").Logger(),
		repo:        repo,
		checkpoints: checkpoints,
		records:     records,
		queue:       queueSvc,
		bus:         bus,
		clock:       clock,
	}
}

type service struct {
	log         zerolog.Logger
	repo        domain.SyncConflictRepo
	checkpoints domain.SyncCheckpointRepo
	records     domain.RecordStore
	queue       queue.Service
	bus         EventBus.Bus
	clock       domain.Clock
}

func (s *service) Record(ctx context.Context, conflict *domain.SyncConflict) (*domain.SyncConflict, error) {
	conflict.DetectedAt = s.clock.Now()
	conflict.Resolution = domain.ConflictResolutionUnresolved

	stored, err := s.repo.Store(ctx, conflict)
	if err != nil {
		return nil, err
	}

	s.log.Warn().
		Int64("conflictId", stored.ID).
		Int("storeId", stored.StoreID).
		Str("entityType", string(stored.EntityType)).
		Str("entityId", stored.EntityID).
		Msg("sync conflict detected")

	s.bus.Publish(domain.EventConflictDetected, domain.ConflictEvent{
		ConflictID: stored.ID,
		BatchID:    stored.BatchID,
		StoreID:    stored.StoreID,
		EntityType: stored.EntityType,
		EntityID:   stored.EntityID,
		Timestamp:  stored.DetectedAt,
	})

	return stored, nil
}

func (s *service) AutoResolve(ctx context.Context, conflict *domain.SyncConflict) (*domain.SyncConflict, error) {
	conflict.DetectedAt = s.clock.Now()
	conflict.Resolution = domain.ConflictResolutionUnresolved

	stored, err := s.repo.Store(ctx, conflict)
	if err != nil {
		return nil, err
	}

	s.log.Debug().
		Int64("conflictId", stored.ID).
		Int("storeId", stored.StoreID).
		Str("entityType", string(stored.EntityType)).
		Str("entityId", stored.EntityID).
		Msg("resolving sync conflict by last-write-wins")

	// later modification wins; HQ is authoritative on a tie
	resolution := domain.ConflictResolutionRemoteWins
	if stored.LocalModifiedAt.After(stored.RemoteModifiedAt) {
		resolution = domain.ConflictResolutionLocalWins
	}

	return s.Resolve(ctx, ResolveRequest{
		ID:         stored.ID,
		Resolution: resolution,
		ResolvedBy: "system:last-write-wins",
	})
}

func (s *service) Resolve(ctx context.Context, req ResolveRequest) (*domain.SyncConflict, error) {
	switch req.Resolution {
	case domain.ConflictResolutionLocalWins, domain.ConflictResolutionRemoteWins,
		domain.ConflictResolutionMerged, domain.ConflictResolutionManuallyResolved:
	default:
		return nil, errors.Wrap(domain.ErrValidation, "invalid resolution: %s", req.Resolution)
	}
	if req.ResolvedBy == "" {
		return nil, errors.Wrap(domain.ErrValidation, "resolvedBy is required")
	}
	if req.Resolution == domain.ConflictResolutionMerged && len(req.MergedData) == 0 {
		return nil, errors.Wrap(domain.ErrValidation, "merged resolution requires merged data")
	}
	if len(req.MergedData) > 0 && !json.Valid(req.MergedData) {
		return nil, errors.Wrap(domain.ErrValidation, "merged data is not valid JSON")
	}

	conflict, err := s.repo.FindByID(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	resolvedAt := s.clock.Now()
	if err := s.repo.MarkResolved(ctx, req.ID, req.Resolution, req.ResolvedBy, req.Notes, resolvedAt); err != nil {
		return nil, err
	}

	if err := s.applyResolution(ctx, conflict, req, resolvedAt); err != nil {
		// the resolution is recorded; surfacing the apply failure lets the
		// operator retry the write without flipping the conflict back
		return nil, errors.Wrap(err, "conflict %d resolved but applying the winner failed", req.ID)
	}

	conflict.Resolution = req.Resolution
	conflict.ResolvedBy = req.ResolvedBy
	conflict.Notes = req.Notes
	conflict.ResolvedAt = &resolvedAt

	s.log.Info().
		Int64("conflictId", conflict.ID).
		Str("resolution", string(req.Resolution)).
		Str("resolvedBy", req.ResolvedBy).
		Msg("sync conflict resolved")

	return conflict, nil
}

// applyResolution writes the winning value into the local record store,
// queues it for upload when HQ does not already hold it, and advances the
// checkpoint so the same divergence is not re-detected.
func (s *service) applyResolution(ctx context.Context, conflict *domain.SyncConflict, req ResolveRequest, resolvedAt time.Time) error {
	var winner []byte
	switch req.Resolution {
	case domain.ConflictResolutionLocalWins:
		winner = conflict.LocalData
	case domain.ConflictResolutionRemoteWins:
		winner = conflict.RemoteData
	case domain.ConflictResolutionMerged:
		winner = req.MergedData
	case domain.ConflictResolutionManuallyResolved:
		winner = req.MergedData // optional; empty means resolved out of band
	}

	if winner != nil {
		record := domain.SyncRecord{
			EntityID:     conflict.EntityID,
			Operation:    domain.SyncOperationUpdate,
			Data:         winner,
			LastModified: resolvedAt,
		}
		if err := s.records.Apply(ctx, conflict.EntityType, record); err != nil {
			return err
		}

		// HQ already holds the winner after a remote-wins decision; every
		// other outcome must still travel to the other side
		if req.Resolution != domain.ConflictResolutionRemoteWins {
			if _, err := s.queue.Enqueue(ctx, queue.EnqueueRequest{
				StoreID:    conflict.StoreID,
				EntityType: conflict.EntityType,
				EntityID:   conflict.EntityID,
				Operation:  domain.SyncOperationUpdate,
				Priority:   domain.SyncPriorityHigh,
				Payload:    winner,
			}); err != nil {
				return err
			}
		}
	}

	return s.checkpoints.Advance(ctx, conflict.StoreID, conflict.EntityType, conflict.EntityID, resolvedAt)
}

func (s *service) BulkResolve(ctx context.Context, ids []int64, resolution domain.ConflictResolution, resolvedBy string) []BulkResult {
	results := make([]BulkResult, 0, len(ids))
	for _, id := range ids {
		res := BulkResult{ID: id}
		if _, err := s.Resolve(ctx, ResolveRequest{ID: id, Resolution: resolution, ResolvedBy: resolvedBy}); err != nil {
			res.Error = err.Error()
		}
		results = append(results, res)
	}
	return results
}

func (s *service) Get(ctx context.Context, id int64) (*domain.SyncConflict, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *service) GetUnresolved(ctx context.Context, storeID int, entityType *domain.EntityType) ([]domain.SyncConflict, error) {
	return s.repo.FindUnresolved(ctx, storeID, entityType)
}

func (s *service) CountUnresolved(ctx context.Context, storeID int) (int64, error) {
	return s.repo.CountUnresolved(ctx, storeID)
}
