// Package realtime pushes live score and tier updates to connected clients
// over Redis pub/sub. The web tier subscribes per organization and relays to
// its websocket sessions; this side only publishes.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Broadcaster publishes org-scoped events to Redis pub/sub channels.
// A nil Redis client makes every publish a no-op, so single-process
// deployments without Redis still work.
type Broadcaster struct {
	redis *redis.Client
	now   func() time.Time
}

// NewBroadcaster creates a broadcaster. redisClient may be nil.
func NewBroadcaster(redisClient *redis.Client) *Broadcaster {
	return &Broadcaster{redis: redisClient, now: time.Now}
}

// Channel returns the pub/sub channel name for an organization.
func Channel(orgID string) string {
	return fmt.Sprintf("pulse:events:%s", orgID)
}

// Broadcast publishes one event to the organization's channel. Publishing is
// fire-and-forget from the caller's perspective; there is no delivery
// guarantee to clients not currently subscribed.
func (b *Broadcaster) Broadcast(ctx context.Context, orgID, event string, payload interface{}) error {
	if b.redis == nil {
		return nil
	}

	msg, err := json.Marshal(map[string]interface{}{
		"event":     event,
		"timestamp": b.now().UTC(),
		"data":      payload,
	})
	if err != nil {
		return fmt.Errorf("encode broadcast %s: %w", event, err)
	}

	if err := b.redis.Publish(ctx, Channel(orgID), msg).Err(); err != nil {
		return fmt.Errorf("publish %s to %s: %w", event, Channel(orgID), err)
	}
	return nil
}
