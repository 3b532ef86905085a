package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/clinicore/slot-booking/internal/booking"
	"github.com/clinicore/slot-booking/internal/config"
	"github.com/clinicore/slot-booking/internal/pubsub"
	redisclient "github.com/clinicore/slot-booking/internal/redis"
)

// notify-worker tails the slot-change topic and logs every event. It is
// the stand-in for downstream delivery (live availability views, patient
// notifications); losing an event costs freshness, never correctness.
func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("notify-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running in env=%s backend=%s topic=%s", cfg.Env, cfg.EventBackend, cfg.EventTopic)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handle := func(ev booking.SlotEvent) {
		log.Printf("slot change: slot=%s doctor=%s action=%s status=%s",
			ev.SlotID, ev.DoctorID, ev.Action, ev.Status)
	}

	for {
		err := consume(rootCtx, cfg, handle)
		if errors.Is(err, context.Canceled) {
			log.Println("shutdown signal received, stopping notify-worker")
			return
		}
		if err != nil {
			log.Printf("consume error: %v, reconnecting", err)
		}

		select {
		case <-rootCtx.Done():
			log.Println("shutdown signal received, stopping notify-worker")
			return
		case <-time.After(5 * time.Second):
		}
	}
}

func consume(ctx context.Context, cfg config.Config, handle func(booking.SlotEvent)) error {
	if cfg.EventBackend == "amqp" {
		return pubsub.ConsumeAMQP(ctx, cfg.AMQPURL, cfg.EventTopic, handle)
	}

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		return err
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Printf("error closing redis: %v", err)
		}
	}()

	return pubsub.ConsumeRedis(ctx, rdb, cfg.EventTopic, handle)
}
