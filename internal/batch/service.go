// Package batch runs bounded synchronization rounds between a store and HQ:
// draining the queue into an upload envelope, exchanging it over the
// transport, applying the download side with conflict detection, and keeping
// the batch ledger, audit log and checkpoints consistent along the way.
package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/storesync/storesync/internal/conflict"
	"github.com/storesync/storesync/internal/domain"
	"github.com/storesync/storesync/internal/logger"
	"github.com/storesync/storesync/internal/queue"
	"github.com/storesync/storesync/internal/rules"
	"github.com/storesync/storesync/internal/transport"
	"github.com/storesync/storesync/pkg/errors"

	"github.com/asaskevich/EventBus"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// autoSyncConcurrency caps how many stores RunAutoSync works on at once.
const autoSyncConcurrency = 4

type Service interface {
	// RunSync executes one synchronization round for (store, entity type).
	// Conflicts do not fail the round; only infrastructure errors do. With
	// force set, the store's enabled flag is bypassed (a rule must still
	// exist) and a batch row left InProgress by a crashed run is superseded.
	// At most one round runs per (store, entity type) at a time.
	RunSync(ctx context.Context, storeID int, entityType domain.EntityType, force bool) (*domain.SyncBatch, error)
	// RunAutoSync runs RunSync for every enabled store whose interval has
	// elapsed, across all of its active entity rules.
	RunAutoSync(ctx context.Context) error
	// ProcessUploadPayload is the receiving side of an exchange: it verifies
	// the envelope, applies each record with conflict detection, and returns
	// per-record results plus the download envelope for the same entity type.
	ProcessUploadPayload(ctx context.Context, payload *domain.SyncPayload) (*domain.ExchangeResult, error)
	// CancelSync requests cancellation of a running batch. The processor
	// honors it between records; already-applied records stay applied.
	CancelSync(ctx context.Context, batchID string) error
	GetBatch(ctx context.Context, batchID string) (*domain.SyncBatch, error)
	GetFailedBatches(ctx context.Context, storeID int) ([]domain.SyncBatch, error)
	// RetryBatch re-runs a Failed batch as a fresh round.
	RetryBatch(ctx context.Context, batchID string) (*domain.SyncBatch, error)
	LastSuccessful(ctx context.Context, storeID int) (*domain.SyncBatch, error)
}

func NewService(
	log logger.Logger,
	batches domain.SyncBatchRepo,
	logs domain.SyncLogRepo,
	checkpoints domain.SyncCheckpointRepo,
	records domain.RecordStore,
	queueSvc queue.Service,
	rulesSvc rules.Service,
	conflictSvc conflict.Service,
	tp transport.Transport,
	bus EventBus.Bus,
	clock domain.Clock,
) Service {
	return &service{
		log:         log.With().Str("module", "batch").Logger(),
		batches:     batches,
		logs:        logs,
		checkpoints: checkpoints,
		records:     records,
		queue:       queueSvc,
		rules:       rulesSvc,
		conflicts:   conflictSvc,
		transport:   tp,
		bus:         bus,
		clock:       clock,
		inflight:    newInflight(),
	}
}

type service struct {
	log         zerolog.Logger
	batches     domain.SyncBatchRepo
	logs        domain.SyncLogRepo
	checkpoints domain.SyncCheckpointRepo
	records     domain.RecordStore
	queue       queue.Service
	rules       rules.Service
	conflicts   conflict.Service
	transport   transport.Transport
	bus         EventBus.Bus
	clock       domain.Clock
	inflight    *inflight
}

func (s *service) RunSync(ctx context.Context, storeID int, entityType domain.EntityType, force bool) (*domain.SyncBatch, error) {
	now := s.clock.Now()

	if !force {
		enabled, err := s.rules.StoreEnabled(ctx, storeID)
		if err != nil {
			return nil, err
		}
		if !enabled {
			return nil, errors.Wrap(domain.ErrNotConfigured, "sync disabled for store %d", storeID)
		}
	}

	rule, err := s.rules.EffectiveRule(ctx, storeID, entityType, now)
	if err != nil {
		return nil, err
	}

	key := inflightKey(storeID, entityType)
	if !s.inflight.tryAcquire(key) {
		return nil, errors.Wrap(domain.ErrBatchInProgress, "sync already running for store %d entity %s", storeID, entityType)
	}
	defer s.inflight.release(key)

	if existing, err := s.batches.FindInProgress(ctx, storeID, entityType); err != nil {
		return nil, err
	} else if existing != nil {
		if !force {
			return nil, errors.Wrap(domain.ErrBatchInProgress, "batch %s is still in progress", existing.ID)
		}

		// we hold the in-process lock, so this row is a leftover from a
		// crashed run; seal it so the forced round can start
		existing.Status = domain.SyncStatusFailed
		existing.ErrorSummary = "superseded by forced sync"
		existing.CompletedAt = &now
		existing.UpdatedAt = now
		if err := s.batches.Update(ctx, existing); err != nil {
			return nil, err
		}

		s.log.Warn().
			Str("batchId", existing.ID).
			Int("storeId", storeID).
			Str("entityType", string(entityType)).
			Msg("superseded stale in-progress batch")
	}

	batch := &domain.SyncBatch{
		ID:         uuid.New().String(),
		StoreID:    storeID,
		EntityType: entityType,
		Direction:  rule.Direction,
		Status:     domain.SyncStatusInProgress,
		StartedAt:  &now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.batches.Store(ctx, batch); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("batchId", batch.ID).
		Int("storeId", storeID).
		Str("entityType", string(entityType)).
		Str("direction", string(rule.Direction)).
		Msg("sync batch started")

	s.publishBatch(domain.EventBatchStarted, batch)

	runErr := s.execute(ctx, batch, rule)
	return s.finish(ctx, batch, runErr)
}

// finish seals the batch row, appends the audit entry and announces the
// outcome. Conflicts alone never fail a batch.
func (s *service) finish(ctx context.Context, batch *domain.SyncBatch, runErr error) (*domain.SyncBatch, error) {
	completedAt := s.clock.Now()
	batch.CompletedAt = &completedAt
	batch.UpdatedAt = completedAt

	topic := domain.EventBatchCompleted
	switch {
	case runErr == nil:
		batch.Status = domain.SyncStatusCompleted
	case errors.Is(runErr, domain.ErrCancelled):
		batch.Status = domain.SyncStatusCancelled
	default:
		batch.Status = domain.SyncStatusFailed
		batch.ErrorSummary = runErr.Error()
		topic = domain.EventBatchFailed
	}

	if err := s.batches.Update(ctx, batch); err != nil {
		s.log.Error().Err(err).Str("batchId", batch.ID).Msg("failed to persist batch outcome")
	}

	entry := &domain.SyncLog{
		StoreID:    batch.StoreID,
		BatchID:    &batch.ID,
		Operation:  "sync:" + string(batch.Direction),
		EntityType: batch.EntityType,
		Success:    batch.Status == domain.SyncStatusCompleted,
		DurationMS: batch.Duration().Milliseconds(),
		Timestamp:  completedAt,
	}
	if runErr != nil {
		entry.Error = runErr.Error()
	}
	if err := s.logs.Append(ctx, entry); err != nil {
		s.log.Error().Err(err).Str("batchId", batch.ID).Msg("failed to append sync log")
	}

	s.publishBatch(topic, batch)

	s.log.Info().
		Str("batchId", batch.ID).
		Str("status", string(batch.Status)).
		Int("attempted", batch.AttemptedCount).
		Int("succeeded", batch.SucceededCount).
		Int("failed", batch.FailedCount).
		Int("conflicts", batch.ConflictCount).
		Msg("sync batch finished")

	if runErr != nil && !errors.Is(runErr, domain.ErrCancelled) {
		return batch, runErr
	}
	return batch, nil
}

// execute runs the upload and download phases. It returns nil on success,
// ErrCancelled when the operator stopped the batch, or an infrastructure
// error; per-record failures are counted, not returned.
func (s *service) execute(ctx context.Context, batch *domain.SyncBatch, rule *domain.SyncEntityRule) error {
	upload := &domain.SyncPayload{
		StoreID:     batch.StoreID,
		EntityType:  batch.EntityType,
		GeneratedAt: s.clock.Now(),
	}

	// the cutoff must be per entity type: a completed round for some other
	// entity says nothing about what this one has already downloaded
	if last, err := s.batches.LastSuccessfulForEntity(ctx, batch.StoreID, batch.EntityType); err != nil {
		return err
	} else if last != nil {
		upload.SinceTimestamp = last.CompletedAt
	}

	var claimed []domain.SyncQueueItem
	if rule.Direction.AllowsUpload() {
		items, err := s.queue.Dequeue(ctx, batch.StoreID, &batch.EntityType, rule.BatchSize)
		if err != nil {
			return err
		}

		for _, item := range items {
			if cancelled, err := s.cancelRequested(ctx, batch); err != nil {
				return err
			} else if cancelled {
				s.releaseClaimed(ctx, claimed)
				return errors.Wrap(domain.ErrCancelled, "batch %s cancelled while claiming queue items", batch.ID)
			}

			if err := s.queue.MarkInProgress(ctx, item.ID); err != nil {
				if errors.Is(err, domain.ErrStaleState) {
					continue // another runner got it
				}
				return err
			}
			claimed = append(claimed, item)
			upload.Records = append(upload.Records, domain.SyncRecord{
				EntityID:     item.EntityID,
				Operation:    item.Operation,
				Data:         item.Payload,
				LastModified: item.UpdatedAt,
			})
		}
	}

	// an upload-only round with an empty queue has nothing to exchange
	if len(upload.Records) == 0 && !rule.Direction.AllowsDownload() {
		return nil
	}

	domain.SealChecksum(upload)

	result, err := s.transport.Exchange(ctx, upload)
	if err != nil {
		// the whole exchange failed: put every claimed item back on the
		// retry schedule before surfacing the infrastructure error
		for _, item := range claimed {
			if _, failErr := s.queue.MarkFailed(ctx, item.ID, err.Error()); failErr != nil {
				s.log.Error().Err(failErr).Int64("itemId", item.ID).Msg("failed to reschedule queue item")
			}
			batch.AttemptedCount++
			batch.FailedCount++
		}
		return errors.Wrap(err, "exchange with hq failed")
	}

	if err := s.settleUploadResults(ctx, batch, claimed, upload, result.Results); err != nil {
		return err
	}

	if rule.Direction.AllowsDownload() && result.Download != nil {
		if err := s.applyDownload(ctx, batch, rule, result.Download); err != nil {
			return err
		}
	}

	return nil
}

// settleUploadResults reconciles HQ's per-record verdicts with the claimed
// queue items.
func (s *service) settleUploadResults(ctx context.Context, batch *domain.SyncBatch, claimed []domain.SyncQueueItem, upload *domain.SyncPayload, results []domain.RecordResult) error {
	verdicts := make(map[string]domain.RecordResult, len(results))
	for _, r := range results {
		verdicts[r.EntityID] = r
	}
	sent := make(map[string]domain.SyncRecord, len(upload.Records))
	for _, rec := range upload.Records {
		sent[rec.EntityID] = rec
	}

	for _, item := range claimed {
		batch.AttemptedCount++

		verdict, ok := verdicts[item.EntityID]
		if !ok {
			// HQ did not acknowledge the record at all; schedule a retry
			if _, err := s.queue.MarkFailed(ctx, item.ID, "record missing from exchange response"); err != nil {
				return err
			}
			batch.FailedCount++
			continue
		}

		switch {
		case verdict.Error != "":
			if _, err := s.queue.MarkFailed(ctx, item.ID, verdict.Error); err != nil {
				return err
			}
			batch.FailedCount++

		case verdict.Conflict:
			// the divergence is recorded on the receiving side; the intent
			// was delivered, so the queue item is done
			if err := s.queue.MarkCompleted(ctx, item.ID); err != nil {
				return err
			}
			batch.ConflictCount++

		default:
			if err := s.queue.MarkCompleted(ctx, item.ID); err != nil {
				return err
			}
			if rec, ok := sent[item.EntityID]; ok && verdict.Applied {
				if err := s.checkpoints.Advance(ctx, batch.StoreID, batch.EntityType, item.EntityID, rec.LastModified); err != nil {
					return err
				}
			}
			batch.SucceededCount++
		}
	}

	return nil
}

// applyDownload walks HQ's records, applying each one locally unless the
// local copy diverged, in which case a conflict is recorded and, under
// last-write-wins, immediately resolved.
func (s *service) applyDownload(ctx context.Context, batch *domain.SyncBatch, rule *domain.SyncEntityRule, download *domain.SyncPayload) error {
	if err := domain.VerifyChecksum(download); err != nil {
		return err
	}

	for _, rec := range download.Records {
		if cancelled, err := s.cancelRequested(ctx, batch); err != nil {
			return err
		} else if cancelled {
			return errors.Wrap(domain.ErrCancelled, "batch %s cancelled while applying download", batch.ID)
		}

		batch.AttemptedCount++

		local, err := s.records.Get(ctx, batch.EntityType, rec.EntityID)
		if err != nil {
			return err
		}

		if local == nil {
			if err := s.records.Apply(ctx, batch.EntityType, rec); err != nil {
				batch.FailedCount++
				s.log.Error().Err(err).Str("entityId", rec.EntityID).Msg("failed to apply downloaded record")
				continue
			}
			if err := s.checkpoints.Advance(ctx, batch.StoreID, batch.EntityType, rec.EntityID, rec.LastModified); err != nil {
				return err
			}
			batch.SucceededCount++
			continue
		}

		ckpt, err := s.checkpoints.Find(ctx, batch.StoreID, batch.EntityType, rec.EntityID)
		if err != nil {
			return err
		}
		var checkpointAt *time.Time
		if ckpt != nil {
			checkpointAt = &ckpt.CheckpointAt
		}

		outcome := conflict.Detect(
			conflict.Version{Data: local.Data, ModifiedAt: local.LastModified},
			conflict.Version{Data: rec.Data, ModifiedAt: rec.LastModified},
			checkpointAt,
		)

		switch outcome {
		case conflict.OutcomeInSync:
			if err := s.checkpoints.Advance(ctx, batch.StoreID, batch.EntityType, rec.EntityID, rec.LastModified); err != nil {
				return err
			}
			batch.SucceededCount++

		case conflict.OutcomeLocalWins:
			// our pending change supersedes HQ's copy; the upload path will
			// carry it over
			batch.SucceededCount++

		case conflict.OutcomeRemoteWins:
			if err := s.records.Apply(ctx, batch.EntityType, rec); err != nil {
				batch.FailedCount++
				s.log.Error().Err(err).Str("entityId", rec.EntityID).Msg("failed to apply downloaded record")
				continue
			}
			if err := s.checkpoints.Advance(ctx, batch.StoreID, batch.EntityType, rec.EntityID, rec.LastModified); err != nil {
				return err
			}
			batch.SucceededCount++

		case conflict.OutcomeConflict:
			divergence := &domain.SyncConflict{
				BatchID:          batch.ID,
				StoreID:          batch.StoreID,
				EntityType:       batch.EntityType,
				EntityID:         rec.EntityID,
				LocalData:        local.Data,
				RemoteData:       rec.Data,
				LocalModifiedAt:  local.LastModified,
				RemoteModifiedAt: rec.LastModified,
			}

			if rule.ConflictPolicy == domain.ConflictPolicyLastWriteWins {
				if _, err := s.conflicts.AutoResolve(ctx, divergence); err != nil {
					return err
				}
			} else if _, err := s.conflicts.Record(ctx, divergence); err != nil {
				return err
			}
			batch.ConflictCount++
		}
	}

	return nil
}

func (s *service) ProcessUploadPayload(ctx context.Context, payload *domain.SyncPayload) (*domain.ExchangeResult, error) {
	if err := domain.VerifyChecksum(payload); err != nil {
		return nil, err
	}
	if !payload.EntityType.Valid() {
		return nil, errors.Wrap(domain.ErrValidation, "unknown entity type: %s", payload.EntityType)
	}

	now := s.clock.Now()

	// the uploader's rule decides the conflict policy here too; stores
	// without one fall back to last-write-wins
	policy := domain.ConflictPolicyLastWriteWins
	limit := rules.DefaultBatchSize
	if rule, err := s.rules.EffectiveRule(ctx, payload.StoreID, payload.EntityType, now); err == nil {
		policy = rule.ConflictPolicy
		limit = rule.BatchSize
	} else if !errors.Is(err, domain.ErrNotConfigured) {
		return nil, err
	}

	result := &domain.ExchangeResult{}

	for _, rec := range payload.Records {
		verdict := domain.RecordResult{EntityID: rec.EntityID}

		local, err := s.records.Get(ctx, payload.EntityType, rec.EntityID)
		if err != nil {
			return nil, err
		}

		if local == nil {
			if err := s.records.Apply(ctx, payload.EntityType, rec); err != nil {
				verdict.Error = err.Error()
				result.Results = append(result.Results, verdict)
				continue
			}
			if err := s.checkpoints.Advance(ctx, payload.StoreID, payload.EntityType, rec.EntityID, rec.LastModified); err != nil {
				return nil, err
			}
			verdict.Applied = true
			result.Results = append(result.Results, verdict)
			continue
		}

		ckpt, err := s.checkpoints.Find(ctx, payload.StoreID, payload.EntityType, rec.EntityID)
		if err != nil {
			return nil, err
		}
		var checkpointAt *time.Time
		if ckpt != nil {
			checkpointAt = &ckpt.CheckpointAt
		}

		outcome := conflict.Detect(
			conflict.Version{Data: local.Data, ModifiedAt: local.LastModified},
			conflict.Version{Data: rec.Data, ModifiedAt: rec.LastModified},
			checkpointAt,
		)

		switch outcome {
		case conflict.OutcomeInSync:
			verdict.Applied = true
			if err := s.checkpoints.Advance(ctx, payload.StoreID, payload.EntityType, rec.EntityID, rec.LastModified); err != nil {
				return nil, err
			}

		case conflict.OutcomeRemoteWins:
			if err := s.records.Apply(ctx, payload.EntityType, rec); err != nil {
				verdict.Error = err.Error()
				break
			}
			if err := s.checkpoints.Advance(ctx, payload.StoreID, payload.EntityType, rec.EntityID, rec.LastModified); err != nil {
				return nil, err
			}
			verdict.Applied = true

		case conflict.OutcomeLocalWins:
			// receiver's copy is newer; nothing applied, nothing conflicting

		case conflict.OutcomeConflict:
			divergence := &domain.SyncConflict{
				StoreID:          payload.StoreID,
				EntityType:       payload.EntityType,
				EntityID:         rec.EntityID,
				LocalData:        local.Data,
				RemoteData:       rec.Data,
				LocalModifiedAt:  local.LastModified,
				RemoteModifiedAt: rec.LastModified,
			}

			if policy == domain.ConflictPolicyLastWriteWins {
				if _, err := s.conflicts.AutoResolve(ctx, divergence); err != nil {
					return nil, err
				}
			} else if _, err := s.conflicts.Record(ctx, divergence); err != nil {
				return nil, err
			}
			verdict.Conflict = true
		}

		result.Results = append(result.Results, verdict)
	}

	changed, err := s.records.ChangedSince(ctx, payload.EntityType, payload.SinceTimestamp, limit)
	if err != nil {
		return nil, err
	}

	// once a record has been handed to the uploader, our copy no longer
	// counts as an unseen edit: the uploader settles any divergence and
	// sends the outcome back
	for _, rec := range changed {
		if err := s.checkpoints.Advance(ctx, payload.StoreID, payload.EntityType, rec.EntityID, rec.LastModified); err != nil {
			return nil, err
		}
	}

	download := &domain.SyncPayload{
		StoreID:        payload.StoreID,
		EntityType:     payload.EntityType,
		GeneratedAt:    now,
		SinceTimestamp: payload.SinceTimestamp,
		Records:        changed,
	}
	domain.SealChecksum(download)
	result.Download = download

	return result, nil
}

func (s *service) RunAutoSync(ctx context.Context) error {
	now := s.clock.Now()

	cfgs, err := s.rules.ListConfigurations(ctx)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(autoSyncConcurrency)

	for _, cfg := range cfgs {
		if !cfg.Enabled {
			continue
		}
		cfg := cfg

		g.Go(func() error {
			var lastSync *time.Time
			if last, err := s.batches.LastSuccessful(ctx, cfg.StoreID); err != nil {
				return err
			} else if last != nil {
				lastSync = last.CompletedAt
			}

			due, err := s.rules.NeedsSync(ctx, cfg.StoreID, lastSync, now)
			if err != nil {
				return err
			}
			if !due {
				return nil
			}

			storeRules, err := s.rules.ListRules(ctx, cfg.StoreID)
			if err != nil {
				return err
			}

			for _, rule := range storeRules {
				if !rule.ActiveAt(now) {
					continue
				}
				if _, err := s.RunSync(ctx, cfg.StoreID, rule.EntityType, false); err != nil {
					if errors.Is(err, domain.ErrBatchInProgress) || errors.Is(err, domain.ErrNotConfigured) {
						continue
					}
					// one store's outage must not stop the others
					s.log.Error().Err(err).
						Int("storeId", cfg.StoreID).
						Str("entityType", string(rule.EntityType)).
						Msg("auto sync round failed")
				}
			}
			return nil
		})
	}

	return g.Wait()
}

func (s *service) CancelSync(ctx context.Context, batchID string) error {
	if err := s.batches.RequestCancel(ctx, batchID); err != nil {
		return err
	}
	s.log.Info().Str("batchId", batchID).Msg("batch cancellation requested")
	return nil
}

func (s *service) GetBatch(ctx context.Context, batchID string) (*domain.SyncBatch, error) {
	return s.batches.FindByID(ctx, batchID)
}

func (s *service) GetFailedBatches(ctx context.Context, storeID int) ([]domain.SyncBatch, error) {
	return s.batches.FindByStatus(ctx, storeID, domain.SyncStatusFailed)
}

func (s *service) RetryBatch(ctx context.Context, batchID string) (*domain.SyncBatch, error) {
	batch, err := s.batches.FindByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.Status != domain.SyncStatusFailed {
		return nil, errors.Wrap(domain.ErrInvalidTransition, "cannot retry batch %s in status %s", batchID, batch.Status)
	}

	batch.RetryCount++
	batch.UpdatedAt = s.clock.Now()
	if err := s.batches.Update(ctx, batch); err != nil {
		return nil, err
	}

	return s.RunSync(ctx, batch.StoreID, batch.EntityType, true)
}

func (s *service) LastSuccessful(ctx context.Context, storeID int) (*domain.SyncBatch, error) {
	return s.batches.LastSuccessful(ctx, storeID)
}

func (s *service) cancelRequested(ctx context.Context, batch *domain.SyncBatch) (bool, error) {
	return s.batches.CancelRequested(ctx, batch.ID)
}

// releaseClaimed puts claimed-but-unsent items back to Pending so a round
// that stopped before the exchange never strands them InProgress.
func (s *service) releaseClaimed(ctx context.Context, claimed []domain.SyncQueueItem) {
	for _, item := range claimed {
		if err := s.queue.Release(ctx, item.ID); err != nil {
			s.log.Error().Err(err).Int64("itemId", item.ID).Msg("failed to release claimed queue item")
		}
	}
}

func (s *service) publishBatch(topic string, batch *domain.SyncBatch) {
	s.bus.Publish(topic, domain.BatchEvent{
		BatchID:    batch.ID,
		StoreID:    batch.StoreID,
		EntityType: batch.EntityType,
		Direction:  batch.Direction,
		Status:     batch.Status,
		Attempted:  batch.AttemptedCount,
		Succeeded:  batch.SucceededCount,
		Failed:     batch.FailedCount,
		Conflicts:  batch.ConflictCount,
		Timestamp:  s.clock.Now(),
	})
}

func inflightKey(storeID int, entityType domain.EntityType) string {
	return fmt.Sprintf("%d/%s", storeID, entityType)
}
