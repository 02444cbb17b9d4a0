package webhook

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiterCapsPerHost(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	rl := NewRateLimiter(client, 2)
	ctx := context.Background()

	assert.True(t, rl.Allow(ctx, "hooks.example.com"))
	assert.True(t, rl.Allow(ctx, "hooks.example.com"))
	assert.False(t, rl.Allow(ctx, "hooks.example.com"))

	// Other hosts keep their own budget.
	assert.True(t, rl.Allow(ctx, "other.example.com"))
}

func TestRateLimiterFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	rl := NewRateLimiter(client, 1)
	mr.Close()

	assert.True(t, rl.Allow(context.Background(), "hooks.example.com"))
}

func TestRateLimiterDisabled(t *testing.T) {
	ctx := context.Background()

	assert.True(t, NewRateLimiter(nil, 5).Allow(ctx, "hooks.example.com"))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	assert.True(t, NewRateLimiter(client, 0).Allow(ctx, "hooks.example.com"))
}
