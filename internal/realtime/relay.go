package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"nobconsult/internal/events"
)

const DefaultChannel = "nobconsult:application-events"

// Deliverer receives events relayed from any replica.
type Deliverer interface {
	Deliver(e events.Event)
}

// RedisRelay carries committed events between API replicas so every
// replica's websocket clients see every change. Publishing goes to Redis
// only; the local hub receives the event back through Run like any other
// replica.
type RedisRelay struct {
	rdb     *redis.Client
	channel string
	log     *zap.Logger
}

func NewRedisRelay(rdb *redis.Client, channel string, log *zap.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultChannel
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisRelay{rdb: rdb, channel: channel, log: log}
}

func (r *RedisRelay) Publish(ctx context.Context, e events.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := r.rdb.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("relay publish: %w", err)
	}
	return nil
}

// Run delivers relayed events to d until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context, d Deliverer) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("relay subscribe: %w", err)
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
			var e events.Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				r.log.Warn("dropping malformed relayed event", zap.Error(err))
				continue
			}
			d.Deliver(e)
		}
	}
}
