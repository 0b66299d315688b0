package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPRateLimiter_BurstThenDeny(t *testing.T) {
	limiter := NewIPRateLimiter(3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d", i+1)
	}

	allowed, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, allowed)

	// Another IP has its own bucket
	allowed, err = limiter.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestUserRateLimiter_KeysAreIndependent(t *testing.T) {
	limiter := NewUserRateLimiter(1)
	ctx := context.Background()

	allowed, _ := limiter.Allow(ctx, "user-1")
	assert.True(t, allowed)
	allowed, _ = limiter.Allow(ctx, "user-1")
	assert.False(t, allowed)
	allowed, _ = limiter.Allow(ctx, "user-2")
	assert.True(t, allowed)
}

func TestKeyedLimiter_Reset(t *testing.T) {
	limiter := newKeyedLimiter(1)
	ctx := context.Background()

	allowed, _ := limiter.Allow(ctx, "k")
	require.True(t, allowed)
	allowed, _ = limiter.Allow(ctx, "k")
	require.False(t, allowed)

	require.NoError(t, limiter.Reset(ctx, "k"))

	allowed, _ = limiter.Allow(ctx, "k")
	assert.True(t, allowed)
}

func TestDistributedRateLimiter_NoClientFailsOpen(t *testing.T) {
	limiter := NewDistributedRateLimiter(nil, "table", 10, time.Minute, "REGENERATE")
	ctx := context.Background()

	allowed, err := limiter.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, allowed)

	remaining, resetIn, err := limiter.GetRemaining(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 10, remaining)
	assert.Equal(t, time.Minute, resetIn)

	assert.NoError(t, limiter.Reset(ctx, "user-1"))
}

func TestDistributedRateLimiter_SetHeaders(t *testing.T) {
	limiter := NewDistributedRateLimiter(nil, "table", 10, time.Minute, "REGENERATE")

	headers := make(map[string]string)
	require.NoError(t, limiter.SetHeaders(context.Background(), "user-1", headers))

	assert.Equal(t, "10", headers["X-RateLimit-Limit"])
	assert.Equal(t, "10", headers["X-RateLimit-Remaining"])
	assert.NotEmpty(t, headers["X-RateLimit-Reset"])
}

func TestDistributedRateLimiter_Accessors(t *testing.T) {
	limiter := NewDistributedRateLimiter(nil, "table", 10, time.Minute, "REGENERATE")

	assert.Equal(t, 10, limiter.GetLimit())
	assert.Equal(t, time.Minute, limiter.GetWindow())
}
