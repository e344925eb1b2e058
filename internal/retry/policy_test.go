package retry

import (
	"testing"
	"time"

	"github.com/storesync/storesync/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_Delay(t *testing.T) {
	p := Default()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: 30 * time.Second},
		{attempt: 2, want: 60 * time.Second},
		{attempt: 3, want: 120 * time.Second},
		{attempt: 4, want: 240 * time.Second},
		{attempt: 5, want: 480 * time.Second},
		{attempt: 6, want: 3600 * time.Second},
		{attempt: 12, want: 3600 * time.Second},
		{attempt: 64, want: 3600 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Delay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestPolicy_Delay_NonPositiveAttempt(t *testing.T) {
	p := Default()

	assert.Equal(t, p.BaseDelay, p.Delay(0))
	assert.Equal(t, p.BaseDelay, p.Delay(-3))
}

func TestPolicy_Delay_ClampsAtMax(t *testing.T) {
	p := Policy{BaseDelay: 10 * time.Second, MaxDelay: 25 * time.Second, MaxRetries: 3}

	assert.Equal(t, 10*time.Second, p.Delay(1))
	assert.Equal(t, 20*time.Second, p.Delay(2))
	assert.Equal(t, 25*time.Second, p.Delay(3))
	assert.Equal(t, 25*time.Second, p.Delay(30))
}

func TestPolicy_Exhausted(t *testing.T) {
	p := Default()

	assert.False(t, p.Exhausted(0))
	assert.False(t, p.Exhausted(4))
	assert.True(t, p.Exhausted(5))
	assert.True(t, p.Exhausted(6))
}

func TestPolicy_NextAttemptAt(t *testing.T) {
	p := Default()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, now.Add(30*time.Second), p.NextAttemptAt(now, 1))
	assert.Equal(t, now.Add(480*time.Second), p.NextAttemptAt(now, 5))
}

func TestFromConfig(t *testing.T) {
	p := FromConfig(domain.SyncConfig{
		RetryBaseDelaySeconds: 5,
		RetryMaxDelaySeconds:  60,
		RetryMaxAttempts:      2,
	})

	assert.Equal(t, 5*time.Second, p.BaseDelay)
	assert.Equal(t, 60*time.Second, p.MaxDelay)
	assert.Equal(t, 2, p.MaxRetries)

	// zero values fall back to the defaults
	p = FromConfig(domain.SyncConfig{})
	assert.Equal(t, Default(), p)
}
