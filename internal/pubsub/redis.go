// Package pubsub carries slot-change events to subscribers. Two backends
// are provided: Redis pub/sub (the default) and a RabbitMQ queue. Both
// are fire-and-forget from the engine's point of view; delivery is at
// most once and never part of the booking guarantee.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/clinicore/slot-booking/internal/booking"
)

type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, topic string, ev booking.SlotEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal slot event: %w", err)
	}
	if err := p.client.Publish(ctx, topic, body).Err(); err != nil {
		return fmt.Errorf("publish slot event: %w", err)
	}
	return nil
}

// ConsumeRedis subscribes to the topic and feeds decoded events to handle
// until ctx is cancelled. Undecodable payloads are skipped.
func ConsumeRedis(ctx context.Context, client *redis.Client, topic string, handle func(booking.SlotEvent)) error {
	sub := client.Subscribe(ctx, topic)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev booking.SlotEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			handle(ev)
		}
	}
}
