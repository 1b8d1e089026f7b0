package backoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelayStaysWithinBounds(t *testing.T) {
	p := New(time.Second, 32*time.Second)
	for attempt := 0; attempt < 20; attempt++ {
		for i := 0; i < 50; i++ {
			d := p.Delay(attempt)
			assert.GreaterOrEqual(t, d, time.Second)
			assert.LessOrEqual(t, d, 32*time.Second)
		}
	}
}

func TestDelayGrowsExponentiallyWithoutJitter(t *testing.T) {
	p := Policy{Min: time.Second, Max: 32 * time.Second, Multiplier: 2}
	want := []time.Duration{1, 2, 4, 8, 16, 32, 32}
	for i, w := range want {
		assert.Equal(t, w*time.Second, p.Delay(i), "attempt %d", i)
	}
}

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), Policy{Min: time.Millisecond, Max: time.Millisecond}, 5, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("boom")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryReturnsLastError(t *testing.T) {
	calls := 0
	last := errors.New("still down")
	err := Retry(context.Background(), Policy{Min: time.Millisecond, Max: time.Millisecond}, 3, func(context.Context) error {
		calls++
		return last
	})
	assert.ErrorIs(t, err, last)
	assert.Equal(t, 3, calls)
}

func TestRetryHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, Policy{Min: time.Hour, Max: time.Hour}, 3, func(context.Context) error {
		calls++
		cancel()
		return errors.New("fail")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
