package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/clinicore/slot-booking/internal/booking"
)

type RouterConfig struct {
	Service   *booking.Service
	PgPool    *pgxpool.Pool
	Redis     *redis.Client
	Env       string
	Version   string
	JWTSecret string
	RateRPS   float64
	RateBurst int
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Everything below requires an authenticated actor.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.JWTSecret))

		r.Post("/slots/generate", generateSlotsHandler(cfg.Service))
		r.Get("/slots", listSlotsHandler(cfg.Service))
		r.Put("/slots/{id}", updateSlotHandler(cfg.Service))
		r.Post("/slots/bulk-update", bulkUpdateHandler(cfg.Service))

		// Booking carries a per-actor rate limit: retry storms on a hot
		// slot only amplify lock contention.
		r.Group(func(r chi.Router) {
			r.Use(RateLimitMiddleware(cfg.RateRPS, cfg.RateBurst))
			r.Post("/appointments/book/{slotId}", bookSlotHandler(cfg.Service))
		})
	})

	return r
}
