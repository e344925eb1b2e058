package rules

import (
	"context"
	"testing"
	"time"

	"github.com/storesync/storesync/internal/domain"
	"github.com/storesync/storesync/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRuleRepo struct {
	nextID int64
	cfgs   map[int]*domain.SyncConfiguration
	rules  map[int64]*domain.SyncEntityRule
}

func newFakeRuleRepo() *fakeRuleRepo {
	return &fakeRuleRepo{
		nextID: 1,
		cfgs:   make(map[int]*domain.SyncConfiguration),
		rules:  make(map[int64]*domain.SyncEntityRule),
	}
}

func (r *fakeRuleRepo) FindConfiguration(_ context.Context, storeID int) (*domain.SyncConfiguration, error) {
	cfg, ok := r.cfgs[storeID]
	if !ok {
		return nil, nil
	}
	cp := *cfg
	return &cp, nil
}

func (r *fakeRuleRepo) ListConfigurations(_ context.Context) ([]domain.SyncConfiguration, error) {
	var out []domain.SyncConfiguration
	for _, cfg := range r.cfgs {
		out = append(out, *cfg)
	}
	return out, nil
}

func (r *fakeRuleRepo) StoreConfiguration(_ context.Context, cfg *domain.SyncConfiguration) error {
	cp := *cfg
	r.cfgs[cfg.StoreID] = &cp
	return nil
}

func (r *fakeRuleRepo) FindRule(_ context.Context, storeID int, entityType domain.EntityType) (*domain.SyncEntityRule, error) {
	for _, rule := range r.rules {
		if rule.StoreID == storeID && rule.EntityType == entityType {
			cp := *rule
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeRuleRepo) ListRules(_ context.Context, storeID int) ([]domain.SyncEntityRule, error) {
	var out []domain.SyncEntityRule
	for _, rule := range r.rules {
		if rule.StoreID == storeID {
			out = append(out, *rule)
		}
	}
	return out, nil
}

func (r *fakeRuleRepo) StoreRule(_ context.Context, rule *domain.SyncEntityRule) (*domain.SyncEntityRule, error) {
	for id, existing := range r.rules {
		if existing.StoreID == rule.StoreID && existing.EntityType == rule.EntityType {
			rule.ID = id
			cp := *rule
			r.rules[id] = &cp
			return rule, nil
		}
	}
	rule.ID = r.nextID
	r.nextID++
	cp := *rule
	r.rules[rule.ID] = &cp
	return rule, nil
}

func (r *fakeRuleRepo) DeleteRule(_ context.Context, id int64) error {
	if _, ok := r.rules[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.rules, id)
	return nil
}

func TestService_GetConfiguration_Unconfigured(t *testing.T) {
	t.Parallel()

	svc := NewService(logger.Mock(), newFakeRuleRepo())

	_, err := svc.GetConfiguration(context.Background(), 99)
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
}

func TestService_SaveConfiguration_Validation(t *testing.T) {
	t.Parallel()

	svc := NewService(logger.Mock(), newFakeRuleRepo())
	ctx := context.Background()

	err := svc.SaveConfiguration(ctx, &domain.SyncConfiguration{StoreID: 1, Enabled: true})
	assert.ErrorIs(t, err, domain.ErrValidation)

	require.NoError(t, svc.SaveConfiguration(ctx, &domain.SyncConfiguration{StoreID: 1, Enabled: true, IntervalMinutes: 15}))

	cfg, err := svc.GetConfiguration(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, cfg.Interval())
}

func TestService_StoreEnabled(t *testing.T) {
	t.Parallel()

	repo := newFakeRuleRepo()
	svc := NewService(logger.Mock(), repo)
	ctx := context.Background()

	// unconfigured store is simply disabled, not an error
	enabled, err := svc.StoreEnabled(ctx, 1)
	require.NoError(t, err)
	assert.False(t, enabled)

	require.NoError(t, svc.SaveConfiguration(ctx, &domain.SyncConfiguration{StoreID: 1, Enabled: true, IntervalMinutes: 10}))

	enabled, err = svc.StoreEnabled(ctx, 1)
	require.NoError(t, err)
	assert.True(t, enabled)
}

func TestService_NeedsSync(t *testing.T) {
	t.Parallel()

	svc := NewService(logger.Mock(), newFakeRuleRepo())
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, svc.SaveConfiguration(ctx, &domain.SyncConfiguration{StoreID: 1, Enabled: true, IntervalMinutes: 15}))

	// never synced
	due, err := svc.NeedsSync(ctx, 1, nil, now)
	require.NoError(t, err)
	assert.True(t, due)

	recent := now.Add(-5 * time.Minute)
	due, err = svc.NeedsSync(ctx, 1, &recent, now)
	require.NoError(t, err)
	assert.False(t, due)

	stale := now.Add(-15 * time.Minute)
	due, err = svc.NeedsSync(ctx, 1, &stale, now)
	require.NoError(t, err)
	assert.True(t, due)

	// disabled store is never due
	require.NoError(t, svc.SaveConfiguration(ctx, &domain.SyncConfiguration{StoreID: 1, Enabled: false, IntervalMinutes: 15}))
	due, err = svc.NeedsSync(ctx, 1, &stale, now)
	require.NoError(t, err)
	assert.False(t, due)
}

func TestService_EffectiveRule(t *testing.T) {
	t.Parallel()

	svc := NewService(logger.Mock(), newFakeRuleRepo())
	ctx := context.Background()

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	_, err := svc.SaveRule(ctx, &domain.SyncEntityRule{
		StoreID:        1,
		EntityType:     domain.EntityTypeProduct,
		Direction:      domain.SyncDirectionBidirectional,
		ConflictPolicy: domain.ConflictPolicyLastWriteWins,
		EffectiveFrom:  from,
		EffectiveTo:    &to,
	})
	require.NoError(t, err)

	rule, err := svc.EffectiveRule(ctx, 1, domain.EntityTypeProduct, from.AddDate(0, 1, 0))
	require.NoError(t, err)
	// unset batch size falls back to the default
	assert.Equal(t, DefaultBatchSize, rule.BatchSize)

	// outside the effective window
	_, err = svc.EffectiveRule(ctx, 1, domain.EntityTypeProduct, to.AddDate(0, 0, 1))
	assert.ErrorIs(t, err, domain.ErrNotConfigured)

	// no rule at all for the entity type
	_, err = svc.EffectiveRule(ctx, 1, domain.EntityTypeCustomer, from)
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
}

func TestService_SaveRule_Validation(t *testing.T) {
	t.Parallel()

	svc := NewService(logger.Mock(), newFakeRuleRepo())
	ctx := context.Background()
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	valid := domain.SyncEntityRule{
		StoreID:        1,
		EntityType:     domain.EntityTypeProduct,
		Direction:      domain.SyncDirectionUpload,
		ConflictPolicy: domain.ConflictPolicyManual,
		EffectiveFrom:  from,
	}

	tests := []struct {
		name   string
		mutate func(r *domain.SyncEntityRule)
	}{
		{"unknown entity type", func(r *domain.SyncEntityRule) { r.EntityType = "WIDGET" }},
		{"negative batch size", func(r *domain.SyncEntityRule) { r.BatchSize = -1 }},
		{"inverted effective window", func(r *domain.SyncEntityRule) {
			to := from.Add(-time.Hour)
			r.EffectiveTo = &to
		}},
		{"unknown conflict policy", func(r *domain.SyncEntityRule) { r.ConflictPolicy = "COIN_FLIP" }},
		{"unknown direction", func(r *domain.SyncEntityRule) { r.Direction = "SIDEWAYS" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := valid
			tt.mutate(&rule)
			_, err := svc.SaveRule(ctx, &rule)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}

	_, err := svc.SaveRule(ctx, &valid)
	assert.NoError(t, err)

	// a window that starts and ends on the same instant is allowed
	point := valid
	point.EffectiveTo = &from
	_, err = svc.SaveRule(ctx, &point)
	assert.NoError(t, err)
}

func TestService_SaveRule_UpsertsPerStoreEntity(t *testing.T) {
	t.Parallel()

	svc := NewService(logger.Mock(), newFakeRuleRepo())
	ctx := context.Background()
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	first, err := svc.SaveRule(ctx, &domain.SyncEntityRule{
		StoreID:        1,
		EntityType:     domain.EntityTypeProduct,
		Direction:      domain.SyncDirectionUpload,
		ConflictPolicy: domain.ConflictPolicyManual,
		EffectiveFrom:  from,
	})
	require.NoError(t, err)

	second, err := svc.SaveRule(ctx, &domain.SyncEntityRule{
		StoreID:        1,
		EntityType:     domain.EntityTypeProduct,
		Direction:      domain.SyncDirectionBidirectional,
		ConflictPolicy: domain.ConflictPolicyLastWriteWins,
		EffectiveFrom:  from,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	rules, err := svc.ListRules(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, domain.SyncDirectionBidirectional, rules[0].Direction)
}
