package messaging

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// GoRedisClient adapts a go-redis client to the RedisClient interface
// used by RedisEventBus. The underlying client is owned by the caller
// (it is shared with the cache layer); Close only tears down the
// subscriptions this adapter opened.
type GoRedisClient struct {
	client *redis.Client

	mu   sync.Mutex
	subs []*redis.PubSub
}

// NewGoRedisClient creates a new adapter around an existing client.
func NewGoRedisClient(client *redis.Client) *GoRedisClient {
	return &GoRedisClient{client: client}
}

// Publish sends a message to a channel.
func (c *GoRedisClient) Publish(ctx context.Context, channel string, message interface{}) error {
	return c.client.Publish(ctx, channel, message).Err()
}

// Subscribe subscribes to the given channels and pumps incoming messages
// into the returned channel. The pump stops and the channel closes when
// the subscription is closed via Close.
func (c *GoRedisClient) Subscribe(ctx context.Context, channels ...string) (<-chan RedisMessage, error) {
	sub := c.client.Subscribe(ctx, channels...)

	// Confirm the subscription before handing out the channel, so a dead
	// Redis fails here instead of silently delivering nothing.
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, err
	}

	out := make(chan RedisMessage, 64)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			out <- RedisMessage{
				Channel: msg.Channel,
				Payload: msg.Payload,
			}
		}
	}()

	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()

	return out, nil
}

// Close closes every subscription opened through this adapter. Returns
// the first close error, if any.
func (c *GoRedisClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for _, sub := range c.subs {
		if err := sub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.subs = nil
	return firstErr
}
