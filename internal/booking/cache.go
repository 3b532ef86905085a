package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type redisSlotCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSlotCache caches per-doctor slot listings in Redis. A nil
// return from Get means miss; read errors degrade to a miss so a flaky
// cache can never break the read path.
func NewRedisSlotCache(client *redis.Client, ttl time.Duration) SlotCache {
	return &redisSlotCache{client: client, ttl: ttl}
}

func slotListKey(doctorID uuid.UUID) string {
	return fmt.Sprintf("slots:doctor:%s", doctorID.String())
}

func (c *redisSlotCache) Get(ctx context.Context, doctorID uuid.UUID) ([]Slot, bool) {
	raw, err := c.client.Get(ctx, slotListKey(doctorID)).Bytes()
	if err != nil {
		return nil, false
	}
	var slots []Slot
	if err := json.Unmarshal(raw, &slots); err != nil {
		log.Printf("slot cache: corrupt entry for doctor %s: %v", doctorID, err)
		return nil, false
	}
	return slots, true
}

func (c *redisSlotCache) Set(ctx context.Context, doctorID uuid.UUID, slots []Slot) {
	raw, err := json.Marshal(slots)
	if err != nil {
		log.Printf("slot cache: marshal listing for doctor %s: %v", doctorID, err)
		return
	}
	if err := c.client.Set(ctx, slotListKey(doctorID), raw, c.ttl).Err(); err != nil {
		log.Printf("slot cache: store listing for doctor %s: %v", doctorID, err)
	}
}

func (c *redisSlotCache) Invalidate(ctx context.Context, doctorID uuid.UUID) error {
	if err := c.client.Del(ctx, slotListKey(doctorID)).Err(); err != nil {
		return fmt.Errorf("invalidate slot listing: %w", err)
	}
	return nil
}
