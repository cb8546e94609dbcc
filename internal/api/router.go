package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/healthfirst/availability-engine/internal/availability"
)

type RouterConfig struct {
	Service *availability.Service
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Logger  *zap.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Route("/providers/{providerID}", func(r chi.Router) {
		r.Post("/availability", createAvailabilityHandler(cfg.Service))
		r.Get("/availability", listAvailabilityHandler(cfg.Service))
		r.Patch("/availability/{id}", updateAvailabilityHandler(cfg.Service))
		r.Delete("/availability/{id}", deleteAvailabilityHandler(cfg.Service))
		r.Get("/slots", listAvailableSlotsHandler(cfg.Service))
	})

	r.Patch("/slots/{id}/status", updateSlotStatusHandler(cfg.Service))

	return r
}
