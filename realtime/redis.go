package realtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultChannelPrefix namespaces the per-user Redis pub/sub channels.
const DefaultChannelPrefix = "loancoord:user:"

// RedisOption configures a RedisBroker during construction.
type RedisOption func(*RedisBroker) error

// WithChannelPrefix overrides the pub/sub channel namespace.
func WithChannelPrefix(prefix string) RedisOption {
	return func(b *RedisBroker) error {
		if prefix == "" {
			return errors.New("channel prefix must not be empty")
		}
		b.prefix = prefix

		return nil
	}
}

// WithSubscriptionBuffer overrides the per-subscription event buffer.
func WithSubscriptionBuffer(buffer int) RedisOption {
	return func(b *RedisBroker) error {
		if buffer <= 0 {
			return errors.New("subscription buffer must be positive")
		}
		b.buffer = buffer

		return nil
	}
}

// WithRedisLogger configures a logger for subscription decode and transport
// problems.
func WithRedisLogger(logger Logger) RedisOption {
	return func(b *RedisBroker) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		b.logger = logger

		return nil
	}
}

// RedisBroker routes events across processes over Redis pub/sub, one
// channel per user.
type RedisBroker struct {
	client redis.UniversalClient
	prefix string
	buffer int
	logger Logger
}

// NewRedisBroker creates a broker on top of an existing Redis client.
func NewRedisBroker(client redis.UniversalClient, options ...RedisOption) (*RedisBroker, error) {
	if client == nil {
		return nil, errors.New("redis client must not be nil")
	}

	broker := &RedisBroker{
		client: client,
		prefix: DefaultChannelPrefix,
		buffer: DefaultSubscriptionBuffer,
	}

	for _, option := range options {
		if err := option(broker); err != nil {
			return nil, err
		}
	}

	return broker, nil
}

// Publish sends the event to its user's channel. Users without an active
// subscriber anywhere simply miss the event.
func (b *RedisBroker) Publish(ctx context.Context, event Event) error {
	payload, err := event.Encode()
	if err != nil {
		return err
	}

	return b.client.Publish(ctx, b.channel(event.UserID), payload).Err()
}

// Subscribe opens a feed of events addressed to userID. The feed stays open
// until the subscription is closed; undecodable payloads are logged and
// skipped.
func (b *RedisBroker) Subscribe(ctx context.Context, userID int64) (*Subscription, error) {
	pubsub := b.client.Subscribe(ctx, b.channel(userID))

	// Fail early when the server rejects the subscription.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()

		return nil, err
	}

	sub := newSubscription(b.buffer, func() {
		_ = pubsub.Close()
	})

	go func() {
		for message := range pubsub.Channel() {
			event, err := DecodeEvent([]byte(message.Payload))
			if err != nil {
				if b.logger != nil {
					b.logger.Warn("dropping undecodable event",
						"channel", message.Channel, "error", err.Error())
				}
				continue
			}

			sub.deliver(event)
		}
	}()

	return sub, nil
}

func (b *RedisBroker) channel(userID int64) string {
	return fmt.Sprintf("%s%d", b.prefix, userID)
}
