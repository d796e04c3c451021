package admission

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRateLimiter_Invalid(t *testing.T) {
	for _, r := range []int{0, -1} {
		_, err := NewRateLimiter(r)
		assert.ErrorIs(t, err, ErrInvalidRate)
	}
}

func TestRateLimiter_StartsEmpty(t *testing.T) {
	limiter, err := NewRateLimiter(5)
	require.NoError(t, err)

	assert.False(t, limiter.Allow(), "no tokens before the first refill")
	time.Sleep(250 * time.Millisecond)
	assert.True(t, limiter.Allow(), "one token refills every 1/rate seconds")
}

func TestRateLimiter_RefillCappedAtRate(t *testing.T) {
	const rate = 20
	limiter, err := NewRateLimiter(rate)
	require.NoError(t, err)

	time.Sleep(1100 * time.Millisecond)
	for i := 0; i < rate; i++ {
		assert.True(t, limiter.Allow(), "token %d should be available", i)
	}
	assert.False(t, limiter.Allow(), "bucket holds at most rate tokens")
}

// admissionsPerWindow returns the largest number of stamps falling in any
// window starting at one of them.
func admissionsPerWindow(stamps []time.Time, window time.Duration) int {
	peak := 0
	for i := range stamps {
		count := 0
		for j := i; j < len(stamps) && stamps[j].Sub(stamps[i]) < window; j++ {
			count++
		}
		peak = max(peak, count)
	}
	return peak
}

func TestRateLimiter_BacklogBound(t *testing.T) {
	const rate = 50
	const admissions = rate + rate/2

	limiter, err := NewRateLimiter(rate)
	require.NoError(t, err)

	ctx := context.Background()
	stamps := make([]time.Time, 0, admissions)
	start := time.Now()
	for i := 0; i < admissions; i++ {
		require.NoError(t, limiter.Wait(ctx))
		stamps = append(stamps, time.Now())
	}

	assert.GreaterOrEqual(t, time.Since(start), 1400*time.Millisecond)
	assert.LessOrEqual(t, admissionsPerWindow(stamps, time.Second), rate+1)
}

func TestRateLimiter_WaitHonoursContext(t *testing.T) {
	limiter, err := NewRateLimiter(1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.Error(t, limiter.Wait(ctx))
}
