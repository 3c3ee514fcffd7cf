package documents

import (
	"context"
	"encoding/json"
	"log/slog"

	redis "github.com/redis/go-redis/v9"
)

// Change announces the paths a write touched.
type Change struct {
	Origin string   `json:"origin"`
	Paths  []string `json:"paths"`
}

// Feed carries changes between api instances.
type Feed interface {
	Publish(ctx context.Context, change Change) error
	Listen(ctx context.Context, fn func(Change)) error
}

// RedisFeed is a Feed on Redis pub/sub.
type RedisFeed struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// NewRedisFeed constructs a RedisFeed publishing on channel.
func NewRedisFeed(client *redis.Client, channel string, logger *slog.Logger) *RedisFeed {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisFeed{client: client, channel: channel, logger: logger}
}

// Publish sends change to every listening instance.
func (f *RedisFeed) Publish(ctx context.Context, change Change) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, f.channel, payload).Err()
}

// Listen invokes fn for every change until ctx is done.
func (f *RedisFeed) Listen(ctx context.Context, fn func(Change)) error {
	pubsub := f.client.Subscribe(ctx, f.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	f.logger.Info("change feed subscribed", "channel", f.channel)

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var change Change
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				f.logger.Warn("discarding malformed change", "error", err)
				continue
			}
			fn(change)
		}
	}
}
