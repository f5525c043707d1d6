package feed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/dukerupert/daybook/internal/model"
)

// DefaultChannelPrefix is prepended to the YYYY-MM month on every channel.
const DefaultChannelPrefix = "daybook:month:"

// RedisBridge publishes month changes to Redis and forwards changes from
// every process to the local hub.
type RedisBridge struct {
	client *redis.Client
	hub    *Hub
	prefix string
	logger *slog.Logger
}

func NewRedisBridge(client *redis.Client, hub *Hub, prefix string, logger *slog.Logger) *RedisBridge {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisBridge{client: client, hub: hub, prefix: prefix, logger: logger}
}

// Notify publishes each month. A month that cannot be published is still
// delivered to local listeners.
func (b *RedisBridge) Notify(ctx context.Context, months ...model.MonthKey) {
	for _, m := range months {
		if err := b.client.Publish(ctx, b.prefix+m.String(), "changed").Err(); err != nil {
			b.logger.Error("publish month change", "month", m.String(), "error", err)
			b.hub.Notify(ctx, m)
		}
	}
}

// Run forwards published changes to the hub until ctx is done.
func (b *RedisBridge) Run(ctx context.Context) error {
	pubsub := b.client.PSubscribe(ctx, b.prefix+"*")
	defer pubsub.Close()

	// Wait for the subscription to be confirmed.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe month changes: %w", err)
	}
	b.logger.Info("redis bridge subscribed", "pattern", b.prefix+"*")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			m, err := b.monthFromChannel(msg.Channel)
			if err != nil {
				b.logger.Warn("ignoring month change", "channel", msg.Channel, "error", err)
				continue
			}
			b.hub.Notify(ctx, m)
		}
	}
}

func (b *RedisBridge) monthFromChannel(channel string) (model.MonthKey, error) {
	s, ok := strings.CutPrefix(channel, b.prefix)
	if !ok {
		return model.MonthKey{}, fmt.Errorf("channel %q lacks prefix %q", channel, b.prefix)
	}
	return model.ParseMonthKey(s)
}
