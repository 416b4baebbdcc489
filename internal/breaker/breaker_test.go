package breaker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digital-menu/ordering-service/internal/breaker"
)

var errBoom = errors.New("boom")

func failing(calls *int) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		*calls++
		return errBoom
	}
}

func succeeding(calls *int) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		*calls++
		return nil
	}
}

func TestBreaker_PassesThroughWhenClosed(t *testing.T) {
	b := breaker.New("catalog", 3, time.Minute)

	calls := 0
	err := b.Execute(context.Background(), succeeding(&calls))

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, breaker.StateClosed, b.State())
}

func TestBreaker_PropagatesOperationError(t *testing.T) {
	b := breaker.New("catalog", 3, time.Minute)

	calls := 0
	err := b.Execute(context.Background(), failing(&calls))

	assert.ErrorIs(t, err, errBoom)
	assert.NotErrorIs(t, err, breaker.ErrCircuitOpen)
	assert.Equal(t, 1, b.Failures())
}

func TestBreaker_OpensAfterMaxFailures(t *testing.T) {
	b := breaker.New("catalog", 3, time.Minute)

	calls := 0
	for i := 0; i < 3; i++ {
		err := b.Execute(context.Background(), failing(&calls))
		require.ErrorIs(t, err, errBoom)
	}
	require.Equal(t, breaker.StateOpen, b.State())

	// The next call must be rejected without invoking the operation.
	err := b.Execute(context.Background(), failing(&calls))
	assert.ErrorIs(t, err, breaker.ErrCircuitOpen)
	assert.Equal(t, 3, calls)
}

func TestBreaker_HalfOpenProbeSuccessResets(t *testing.T) {
	b := breaker.New("catalog", 2, 20*time.Millisecond)

	calls := 0
	for i := 0; i < 2; i++ {
		_ = b.Execute(context.Background(), failing(&calls))
	}
	require.Equal(t, breaker.StateOpen, b.State())

	time.Sleep(30 * time.Millisecond)

	// Exactly one trial call is let through after the reset timeout.
	err := b.Execute(context.Background(), succeeding(&calls))
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, breaker.StateClosed, b.State())
	assert.Equal(t, 0, b.Failures())
}

func TestBreaker_HalfOpenProbeFailureReopens(t *testing.T) {
	b := breaker.New("catalog", 2, 20*time.Millisecond)

	calls := 0
	for i := 0; i < 2; i++ {
		_ = b.Execute(context.Background(), failing(&calls))
	}
	time.Sleep(30 * time.Millisecond)

	err := b.Execute(context.Background(), failing(&calls))
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, breaker.StateOpen, b.State())

	// Timeout has not elapsed again, so the circuit rejects immediately.
	err = b.Execute(context.Background(), failing(&calls))
	assert.ErrorIs(t, err, breaker.ErrCircuitOpen)
	assert.Equal(t, 3, calls)
}

func TestBreaker_IndependentInstances(t *testing.T) {
	a := breaker.New("catalog", 1, time.Minute)
	b := breaker.New("payments", 1, time.Minute)

	calls := 0
	_ = a.Execute(context.Background(), failing(&calls))

	assert.Equal(t, breaker.StateOpen, a.State())
	assert.Equal(t, breaker.StateClosed, b.State())
}
