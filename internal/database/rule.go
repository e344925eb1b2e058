package database

import (
	"context"

	"github.com/storesync/storesync/internal/domain"
	"github.com/storesync/storesync/internal/logger"
	"github.com/storesync/storesync/pkg/errors"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func NewSyncRuleRepo(log logger.Logger, db *DB) domain.SyncRuleRepo {
	return &SyncRuleRepo{
		log: log.With().Str("repo", "sync_rule").Logger(),
		db:  db,
	}
}

type SyncRuleRepo struct {
	log zerolog.Logger
	db  *DB
}

func (r *SyncRuleRepo) FindConfiguration(ctx context.Context, storeID int) (*domain.SyncConfiguration, error) {
	var cfg domain.SyncConfiguration
	result := r.db.Get().WithContext(ctx).First(&cfg, "store_id = ?", storeID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(result.Error, "failed to find sync configuration")
	}
	return &cfg, nil
}

func (r *SyncRuleRepo) ListConfigurations(ctx context.Context) ([]domain.SyncConfiguration, error) {
	var cfgs []domain.SyncConfiguration
	if err := r.db.Get().WithContext(ctx).Order("store_id ASC").Find(&cfgs).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list sync configurations")
	}
	return cfgs, nil
}

func (r *SyncRuleRepo) StoreConfiguration(ctx context.Context, cfg *domain.SyncConfiguration) error {
	// upsert on the store id primary key
	err := r.db.Get().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "store_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"enabled", "interval_minutes", "updated_at"}),
		}).
		Create(cfg).Error
	if err != nil {
		r.log.Error().Err(err).Int("storeId", cfg.StoreID).Msg("Failed to store sync configuration")
		return errors.Wrap(err, "failed to store sync configuration")
	}
	return nil
}

func (r *SyncRuleRepo) FindRule(ctx context.Context, storeID int, entityType domain.EntityType) (*domain.SyncEntityRule, error) {
	var rule domain.SyncEntityRule
	result := r.db.Get().WithContext(ctx).
		Where("store_id = ? AND entity_type = ?", storeID, entityType).
		First(&rule)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			// absence of a rule means the entity type is not synchronized
			return nil, nil
		}
		return nil, errors.Wrap(result.Error, "failed to find entity rule")
	}
	return &rule, nil
}

func (r *SyncRuleRepo) ListRules(ctx context.Context, storeID int) ([]domain.SyncEntityRule, error) {
	var rules []domain.SyncEntityRule
	err := r.db.Get().WithContext(ctx).
		Where("store_id = ?", storeID).
		Order("entity_type ASC").
		Find(&rules).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list entity rules")
	}
	return rules, nil
}

func (r *SyncRuleRepo) StoreRule(ctx context.Context, rule *domain.SyncEntityRule) (*domain.SyncEntityRule, error) {
	// one rule per (store, entity type); upsert keeps the invariant
	err := r.db.Get().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "store_id"}, {Name: "entity_type"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"direction", "batch_size", "conflict_policy", "effective_from", "effective_to", "updated_at",
			}),
		}).
		Create(rule).Error
	if err != nil {
		r.log.Error().Err(err).Int("storeId", rule.StoreID).Str("entityType", string(rule.EntityType)).Msg("Failed to store entity rule")
		return nil, errors.Wrap(err, "failed to store entity rule")
	}
	return rule, nil
}

func (r *SyncRuleRepo) DeleteRule(ctx context.Context, id int64) error {
	result := r.db.Get().WithContext(ctx).Delete(&domain.SyncEntityRule{}, "id = ?", id)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to delete entity rule")
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
