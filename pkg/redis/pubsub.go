package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"frameworks/pkg/logging"
)

// TypedPubSub publishes and consumes JSON-encoded messages of type T on a
// Redis channel.
type TypedPubSub[T any] struct {
	client  goredis.UniversalClient
	channel string
	logger  logging.Logger
}

func NewTypedPubSub[T any](client goredis.UniversalClient, channel string, logger logging.Logger) *TypedPubSub[T] {
	return &TypedPubSub[T]{client: client, channel: channel, logger: logging.OrDiscard(logger)}
}

// Channel returns the channel this pub/sub is bound to.
func (p *TypedPubSub[T]) Channel() string {
	return p.channel
}

func (p *TypedPubSub[T]) Publish(ctx context.Context, msg T) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal pubsub payload: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to redis: %w", err)
	}

	return nil
}

// Subscribe blocks delivering messages to handler until ctx is done.
// Undecodable payloads are logged and skipped.
func (p *TypedPubSub[T]) Subscribe(ctx context.Context, handler func(T)) error {
	sub := p.client.Subscribe(ctx, p.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to redis: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var payload T
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				p.logger.WithError(err).WithField("channel", p.channel).Warn("Dropping undecodable pubsub payload")
				continue
			}
			handler(payload)
		}
	}
}
