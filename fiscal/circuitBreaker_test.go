package fiscal

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errProvider = errors.New("provider down")

func newTestBreaker(cfg BreakerConfig) (*CircuitBreaker, *time.Time) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(cfg)
	cb.now = func() time.Time { return now }
	return cb, &now
}

func fail() error    { return errProvider }
func succeed() error { return nil }

func TestBreakerDefaults(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{})
	assert.Equal(t, 5, cb.failureThreshold)
	assert.Equal(t, 2, cb.successThreshold)
	assert.Equal(t, time.Minute, cb.openTimeout)
	assert.Equal(t, BreakerClosed, cb.State())
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cb, _ := newTestBreaker(BreakerConfig{FailureThreshold: 3, OpenTimeout: time.Minute})

	require.ErrorIs(t, cb.Execute(fail), errProvider)
	require.ErrorIs(t, cb.Execute(fail), errProvider)
	assert.Equal(t, BreakerClosed, cb.State())
	require.ErrorIs(t, cb.Execute(fail), errProvider)
	assert.Equal(t, BreakerOpen, cb.State())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(BreakerConfig{FailureThreshold: 2})

	require.Error(t, cb.Execute(fail))
	require.NoError(t, cb.Execute(succeed))
	require.Error(t, cb.Execute(fail))
	assert.Equal(t, BreakerClosed, cb.State())
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	cb, now := newTestBreaker(BreakerConfig{FailureThreshold: 1, SuccessThreshold: 2, OpenTimeout: 30 * time.Second})

	require.Error(t, cb.Execute(fail))
	assert.Equal(t, BreakerOpen, cb.State())

	*now = now.Add(29 * time.Second)
	assert.Equal(t, BreakerOpen, cb.State())
	*now = now.Add(time.Second)
	assert.Equal(t, BreakerHalfOpen, cb.State())

	require.NoError(t, cb.Execute(succeed))
	assert.Equal(t, BreakerHalfOpen, cb.State())
	require.NoError(t, cb.Execute(succeed))
	assert.Equal(t, BreakerClosed, cb.State())
}

func TestBreakerHalfOpenTrialFailureReopens(t *testing.T) {
	cb, now := newTestBreaker(BreakerConfig{FailureThreshold: 1, OpenTimeout: 30 * time.Second})

	require.Error(t, cb.Execute(fail))
	*now = now.Add(time.Minute)
	assert.Equal(t, BreakerHalfOpen, cb.State())

	require.ErrorIs(t, cb.Execute(fail), errProvider)
	assert.Equal(t, BreakerOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(succeed), ErrCircuitOpen)
}

func TestBreakerStateString(t *testing.T) {
	assert.Equal(t, "closed", BreakerClosed.String())
	assert.Equal(t, "open", BreakerOpen.String())
	assert.Equal(t, "half-open", BreakerHalfOpen.String())
	assert.Equal(t, "unknown", BreakerState(9).String())
}
