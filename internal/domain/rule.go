package domain

import (
	"context"
	"time"
)

// SyncConfiguration is the per-store sync switchboard.
type SyncConfiguration struct {
	StoreID         int       `json:"store_id" gorm:"primaryKey;column:store_id"`
	Enabled         bool      `json:"enabled" gorm:"column:enabled"`
	IntervalMinutes int       `json:"interval_minutes" gorm:"column:interval_minutes"`
	CreatedAt       time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt       time.Time `json:"updated_at" gorm:"column:updated_at"`
}

// Interval returns the configured sync cadence.
func (c *SyncConfiguration) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// SyncEntityRule is the per-(store, entity type) policy. Exactly one rule may
// exist per pair; absence means the entity type is not synchronized for that
// store.
type SyncEntityRule struct {
	ID             int64          `json:"id" gorm:"primaryKey;autoIncrement;column:id"`
	StoreID        int            `json:"store_id" gorm:"column:store_id;uniqueIndex:idx_rule_store_entity"`
	EntityType     EntityType     `json:"entity_type" gorm:"column:entity_type;uniqueIndex:idx_rule_store_entity"`
	Direction      SyncDirection  `json:"direction" gorm:"column:direction"`
	BatchSize      int            `json:"batch_size" gorm:"column:batch_size"`
	ConflictPolicy ConflictPolicy `json:"conflict_policy" gorm:"column:conflict_policy"`
	EffectiveFrom  time.Time      `json:"effective_from" gorm:"column:effective_from"`
	EffectiveTo    *time.Time     `json:"effective_to,omitempty" gorm:"column:effective_to"`
	CreatedAt      time.Time      `json:"created_at" gorm:"column:created_at"`
	UpdatedAt      time.Time      `json:"updated_at" gorm:"column:updated_at"`
}

// ActiveAt reports whether the rule is in effect at t. A nil EffectiveTo means
// open-ended.
func (r *SyncEntityRule) ActiveAt(t time.Time) bool {
	if t.Before(r.EffectiveFrom) {
		return false
	}
	if r.EffectiveTo != nil && t.After(*r.EffectiveTo) {
		return false
	}
	return true
}

// SyncRuleRepo persists configurations and entity rules.
type SyncRuleRepo interface {
	FindConfiguration(ctx context.Context, storeID int) (*SyncConfiguration, error)
	ListConfigurations(ctx context.Context) ([]SyncConfiguration, error)
	StoreConfiguration(ctx context.Context, cfg *SyncConfiguration) error
	FindRule(ctx context.Context, storeID int, entityType EntityType) (*SyncEntityRule, error)
	ListRules(ctx context.Context, storeID int) ([]SyncEntityRule, error)
	StoreRule(ctx context.Context, rule *SyncEntityRule) (*SyncEntityRule, error)
	DeleteRule(ctx context.Context, id int64) error
}
