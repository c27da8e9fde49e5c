package retry_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/notifykit/pkg/retry"
)

func TestExponentialBackoff_NextInterval(t *testing.T) {
	t.Parallel()

	b := retry.ExponentialBackoff{
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      2,
	}

	assert.Equal(t, 100*time.Millisecond, b.NextInterval(1))
	assert.Equal(t, 200*time.Millisecond, b.NextInterval(2))
	assert.Equal(t, 400*time.Millisecond, b.NextInterval(3))
	assert.Equal(t, time.Second, b.NextInterval(10), "capped at the max interval")
	assert.Zero(t, b.NextInterval(0))
	assert.Zero(t, b.NextInterval(-1))
}

func TestExponentialBackoff_Jitter(t *testing.T) {
	t.Parallel()

	b := retry.ExponentialBackoff{
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     time.Minute,
		Multiplier:      2,
		JitterFactor:    0.5,
	}

	for attempt := 1; attempt <= 5; attempt++ {
		base := float64(100*time.Millisecond) * float64(int(1)<<(attempt-1))
		got := float64(b.NextInterval(attempt))
		assert.GreaterOrEqual(t, got, base*0.5, "attempt %d", attempt)
		assert.LessOrEqual(t, got, base*1.5, "attempt %d", attempt)
	}
}

func TestExponentialBackoff_Defaults(t *testing.T) {
	t.Parallel()

	var b retry.ExponentialBackoff
	assert.Equal(t, 200*time.Millisecond, b.NextInterval(1))
	assert.Equal(t, 400*time.Millisecond, b.NextInterval(2))
}

func TestFixedBackoff_NextInterval(t *testing.T) {
	t.Parallel()

	b := retry.FixedBackoff{Interval: 50 * time.Millisecond}
	assert.Equal(t, 50*time.Millisecond, b.NextInterval(1))
	assert.Equal(t, 50*time.Millisecond, b.NextInterval(7))
	assert.Zero(t, b.NextInterval(0))
}

func TestDefaultBackoff(t *testing.T) {
	t.Parallel()

	b := retry.DefaultBackoff()
	first := b.NextInterval(1)
	assert.Greater(t, first, time.Duration(0))
	assert.LessOrEqual(t, b.NextInterval(20), time.Duration(float64(5*time.Second)*1.1))
}
