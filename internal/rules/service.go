// Package rules resolves the per-store sync configuration and the
// per-entity-type rules (direction, batch size, conflict policy) that govern
// how a sync run behaves.
package rules

import (
	"context"
	"time"

	"github.com/storesync/storesync/internal/domain"
	"github.com/storesync/storesync/internal/logger"
	"github.com/storesync/storesync/pkg/errors"

	"github.com/rs/zerolog"
)

// DefaultBatchSize applies when a rule does not set its own.
const DefaultBatchSize = 100

type Service interface {
	// GetConfiguration returns ErrNotConfigured for unknown stores.
	GetConfiguration(ctx context.Context, storeID int) (*domain.SyncConfiguration, error)
	ListConfigurations(ctx context.Context) ([]domain.SyncConfiguration, error)
	SaveConfiguration(ctx context.Context, cfg *domain.SyncConfiguration) error
	// StoreEnabled reports whether sync is switched on for the store. An
	// unconfigured store is disabled.
	StoreEnabled(ctx context.Context, storeID int) (bool, error)
	// NeedsSync reports whether the store's sync interval has elapsed since
	// lastSync. A nil lastSync means the store has never synced and is due.
	NeedsSync(ctx context.Context, storeID int, lastSync *time.Time, now time.Time) (bool, error)
	// EffectiveRule returns the rule active at the given instant for the
	// store and entity type, or ErrNotConfigured when none applies.
	EffectiveRule(ctx context.Context, storeID int, entityType domain.EntityType, at time.Time) (*domain.SyncEntityRule, error)
	SaveRule(ctx context.Context, rule *domain.SyncEntityRule) (*domain.SyncEntityRule, error)
	ListRules(ctx context.Context, storeID int) ([]domain.SyncEntityRule, error)
	DeleteRule(ctx context.Context, id int64) error
}

func NewService(log logger.Logger, repo domain.SyncRuleRepo) Service {
	return &service{
		log:  log.With().Str("module", "rules").Logger(),
		repo: repo,
	}
}

type service struct {
	log  zerolog.Logger
	repo domain.SyncRuleRepo
}

func (s *service) GetConfiguration(ctx context.Context, storeID int) (*domain.SyncConfiguration, error) {
	cfg, err := s.repo.FindConfiguration(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, errors.Wrap(domain.ErrNotConfigured, "store %d has no sync configuration", storeID)
	}
	return cfg, nil
}

func (s *service) ListConfigurations(ctx context.Context) ([]domain.SyncConfiguration, error) {
	return s.repo.ListConfigurations(ctx)
}

func (s *service) SaveConfiguration(ctx context.Context, cfg *domain.SyncConfiguration) error {
	if cfg.IntervalMinutes <= 0 {
		return errors.Wrap(domain.ErrValidation, "sync interval must be positive, got %d", cfg.IntervalMinutes)
	}

	if err := s.repo.StoreConfiguration(ctx, cfg); err != nil {
		return err
	}

	s.log.Info().
		Int("storeId", cfg.StoreID).
		Bool("enabled", cfg.Enabled).
		Int("intervalMinutes", cfg.IntervalMinutes).
		Msg("saved store sync configuration")
	return nil
}

func (s *service) StoreEnabled(ctx context.Context, storeID int) (bool, error) {
	cfg, err := s.repo.FindConfiguration(ctx, storeID)
	if err != nil {
		return false, err
	}
	if cfg == nil {
		return false, nil
	}
	return cfg.Enabled, nil
}

func (s *service) NeedsSync(ctx context.Context, storeID int, lastSync *time.Time, now time.Time) (bool, error) {
	cfg, err := s.GetConfiguration(ctx, storeID)
	if err != nil {
		return false, err
	}
	if !cfg.Enabled {
		return false, nil
	}
	if lastSync == nil {
		return true, nil
	}
	return now.Sub(*lastSync) >= cfg.Interval(), nil
}

func (s *service) EffectiveRule(ctx context.Context, storeID int, entityType domain.EntityType, at time.Time) (*domain.SyncEntityRule, error) {
	rule, err := s.repo.FindRule(ctx, storeID, entityType)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, errors.Wrap(domain.ErrNotConfigured, "no sync rule for store %d entity %s", storeID, entityType)
	}
	if !rule.ActiveAt(at) {
		return nil, errors.Wrap(domain.ErrNotConfigured, "sync rule for store %d entity %s is not active at %s", storeID, entityType, at.Format(time.RFC3339))
	}
	if rule.BatchSize <= 0 {
		rule.BatchSize = DefaultBatchSize
	}
	return rule, nil
}

func (s *service) SaveRule(ctx context.Context, rule *domain.SyncEntityRule) (*domain.SyncEntityRule, error) {
	if !rule.EntityType.Valid() {
		return nil, errors.Wrap(domain.ErrValidation, "unknown entity type: %s", rule.EntityType)
	}
	if rule.BatchSize < 0 {
		return nil, errors.Wrap(domain.ErrValidation, "batch size cannot be negative")
	}
	if rule.EffectiveTo != nil && rule.EffectiveTo.Before(rule.EffectiveFrom) {
		return nil, errors.Wrap(domain.ErrValidation, "rule effective window ends before it starts")
	}
	switch rule.ConflictPolicy {
	case domain.ConflictPolicyLastWriteWins, domain.ConflictPolicyManual:
	default:
		return nil, errors.Wrap(domain.ErrValidation, "unknown conflict policy: %s", rule.ConflictPolicy)
	}
	switch rule.Direction {
	case domain.SyncDirectionUpload, domain.SyncDirectionDownload, domain.SyncDirectionBidirectional:
	default:
		return nil, errors.Wrap(domain.ErrValidation, "unknown sync direction: %s", rule.Direction)
	}

	stored, err := s.repo.StoreRule(ctx, rule)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int("storeId", stored.StoreID).
		Str("entityType", string(stored.EntityType)).
		Str("direction", string(stored.Direction)).
		Str("conflictPolicy", string(stored.ConflictPolicy)).
		Msg("saved sync entity rule")
	return stored, nil
}

func (s *service) ListRules(ctx context.Context, storeID int) ([]domain.SyncEntityRule, error) {
	return s.repo.ListRules(ctx, storeID)
}

func (s *service) DeleteRule(ctx context.Context, id int64) error {
	return s.repo.DeleteRule(ctx, id)
}
