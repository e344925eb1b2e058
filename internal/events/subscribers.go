// Package events wires EventBus subscribers for the sync lifecycle topics.
// Subscribers only observe; they never block or fail the sync path.
package events

import (
	"github.com/storesync/storesync/internal/domain"
	"github.com/storesync/storesync/internal/logger"

	"github.com/asaskevich/EventBus"
	"github.com/rs/zerolog"
)

type Subscriber struct {
	log zerolog.Logger
	bus EventBus.Bus
}

func NewSubscribers(log logger.Logger, bus EventBus.Bus) Subscriber {
	s := Subscriber{
		log: log.With().Str("module", "events").Logger(),
		bus: bus,
	}

	s.Register()
	return s
}

func (s Subscriber) Register() {
	if err := s.bus.Subscribe(domain.EventBatchStarted, s.batchStarted); err != nil {
		s.log.Error().Err(err).Str("topic", domain.EventBatchStarted).Msg("failed to subscribe")
	}
	if err := s.bus.Subscribe(domain.EventBatchCompleted, s.batchCompleted); err != nil {
		s.log.Error().Err(err).Str("topic", domain.EventBatchCompleted).Msg("failed to subscribe")
	}
	if err := s.bus.Subscribe(domain.EventBatchFailed, s.batchFailed); err != nil {
		s.log.Error().Err(err).Str("topic", domain.EventBatchFailed).Msg("failed to subscribe")
	}
	if err := s.bus.Subscribe(domain.EventConflictDetected, s.conflictDetected); err != nil {
		s.log.Error().Err(err).Str("topic", domain.EventConflictDetected).Msg("failed to subscribe")
	}
}

func (s Subscriber) batchStarted(e domain.BatchEvent) {
	s.log.Info().
		Str("batchId", e.BatchID).
		Int("storeId", e.StoreID).
		Str("entityType", string(e.EntityType)).
		Str("direction", string(e.Direction)).
		Msg("batch started")
}

func (s Subscriber) batchCompleted(e domain.BatchEvent) {
	s.log.Info().
		Str("batchId", e.BatchID).
		Int("storeId", e.StoreID).
		Int("attempted", e.Attempted).
		Int("succeeded", e.Succeeded).
		Int("failed", e.Failed).
		Int("conflicts", e.Conflicts).
		Msg("batch completed")
}

func (s Subscriber) batchFailed(e domain.BatchEvent) {
	s.log.Error().
		Str("batchId", e.BatchID).
		Int("storeId", e.StoreID).
		Str("entityType", string(e.EntityType)).
		Msg("batch failed")
}

func (s Subscriber) conflictDetected(e domain.ConflictEvent) {
	s.log.Warn().
		Int64("conflictId", e.ConflictID).
		Str("batchId", e.BatchID).
		Int("storeId", e.StoreID).
		Str("entityType", string(e.EntityType)).
		Str("entityId", e.EntityID).
		Msg("conflict detected")
}
