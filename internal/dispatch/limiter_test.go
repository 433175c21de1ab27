package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterSpacesAcquires(t *testing.T) {
	interval := 40 * time.Millisecond
	l := NewLimiter(interval, 1)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(ctx))
	}
	elapsed := time.Since(start)

	// One token is available immediately; the other two wait a refill each.
	assert.GreaterOrEqual(t, elapsed, 2*interval-5*time.Millisecond)
}

func TestLimiterFirstAcquireIsImmediate(t *testing.T) {
	l := NewLimiter(time.Second, 1)

	start := time.Now()
	require.NoError(t, l.Acquire(context.Background()))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiterHonorsCancellation(t *testing.T) {
	l := NewLimiter(time.Hour, 1)
	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLimiterCapacityCaps(t *testing.T) {
	l := NewLimiter(10*time.Millisecond, 2)
	time.Sleep(100 * time.Millisecond)

	// Long idle must not bank more than capacity tokens.
	ctx := context.Background()
	start := time.Now()
	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))
	assert.Less(t, time.Since(start), 10*time.Millisecond)

	start = time.Now()
	require.NoError(t, l.Acquire(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}
