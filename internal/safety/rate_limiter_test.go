package safety

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRateLimiter_BurstThenDeny tests that the bucket empties after its burst
func TestRateLimiter_BurstThenDeny(t *testing.T) {
	rl := NewRateLimiter("test", 3, 1)

	assert.True(t, rl.Allow())
	assert.True(t, rl.Allow())
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow(), "bucket should be empty after the burst")
}

// TestRateLimiter_Refills tests token refill over time
func TestRateLimiter_Refills(t *testing.T) {
	rl := NewRateLimiter("test", 1, 100)
	require.True(t, rl.Allow())
	require.False(t, rl.Allow())

	time.Sleep(30 * time.Millisecond)

	assert.True(t, rl.Allow(), "tokens should refill at the configured rate")
}

// TestRateLimiter_WaitHonorsContext tests cancellation while blocked
func TestRateLimiter_WaitHonorsContext(t *testing.T) {
	rl := NewRateLimiter("test", 1, 1)
	require.True(t, rl.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := rl.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestRateLimiter_Defaults tests that nonsense construction values fall back
func TestRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter("test", 0, -1)

	for i := 0; i < 10; i++ {
		assert.True(t, rl.Allow())
	}
	assert.Equal(t, "test", rl.Name())
}
