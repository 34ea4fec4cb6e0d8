package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// PubSub fans document events out across collab-service instances. Each
// instance subscribes to the channels of the documents its clients have open.
type PubSub struct {
	client *redis.Client
}

// NewPubSub creates a new PubSub
func NewPubSub(client *redis.Client) *PubSub {
	return &PubSub{client: client}
}

// Publish sends a message on a channel
func (p *PubSub) Publish(ctx context.Context, channel string, message interface{}) error {
	if err := p.client.Publish(ctx, channel, message).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe opens a subscription on the given channels. The caller owns the
// returned PubSub and must Close it.
func (p *PubSub) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return p.client.Subscribe(ctx, channels...)
}
