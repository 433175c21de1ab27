package dispatch

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelayGrowsAndCaps(t *testing.T) {
	base := time.Second
	max := 10 * time.Second

	assert.Equal(t, 1*time.Second, backoffDelay(1, base, max, nil))
	assert.Equal(t, 2*time.Second, backoffDelay(2, base, max, nil))
	assert.Equal(t, 4*time.Second, backoffDelay(3, base, max, nil))
	assert.Equal(t, 8*time.Second, backoffDelay(4, base, max, nil))
	assert.Equal(t, 10*time.Second, backoffDelay(5, base, max, nil))
	assert.Equal(t, 10*time.Second, backoffDelay(50, base, max, nil))
}

func TestBackoffDelayJitterStaysInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for attempt := 1; attempt <= 6; attempt++ {
		ceiling := backoffDelay(attempt, time.Second, 30*time.Second, nil)
		for i := 0; i < 100; i++ {
			d := backoffDelay(attempt, time.Second, 30*time.Second, rng)
			assert.GreaterOrEqual(t, d, time.Duration(0))
			assert.LessOrEqual(t, d, ceiling)
		}
	}
}

func TestBackoffDelayDefendsBadInputs(t *testing.T) {
	assert.Equal(t, time.Second, backoffDelay(0, time.Second, time.Minute, nil))
	assert.Equal(t, time.Second, backoffDelay(1, 0, 0, nil))
	// A shift past 63 bits must clamp to max, not wrap negative.
	assert.Equal(t, time.Minute, backoffDelay(60, time.Second, time.Minute, nil))
}
