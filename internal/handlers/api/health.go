package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	"birthdays/internal/jobs"
)

// Pinger checks that the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports service liveness and background job state.
type HealthHandler struct {
	db        Pinger
	scheduler *jobs.Scheduler
	log       *zap.Logger
}

// NewHealthHandler creates a new health handler. scheduler may be nil when jobs are disabled.
func NewHealthHandler(db Pinger, scheduler *jobs.Scheduler, log *zap.Logger) *HealthHandler {
	return &HealthHandler{db: db, scheduler: scheduler, log: log.Named("api")}
}

// Check pings the database and returns 503 if it is unreachable.
func (h *HealthHandler) Check(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.log.Warn("health check failed", zap.Error(err))
		return jsonError(c, fiber.StatusServiceUnavailable, "database unavailable")
	}
	return jsonSuccess(c, fiber.Map{"database": "ok"})
}

// Jobs returns the scheduler status.
func (h *HealthHandler) Jobs(c fiber.Ctx) error {
	if h.scheduler == nil {
		return jsonSuccess(c, jobs.Status{Metrics: []jobs.JobMetric{}})
	}
	return jsonSuccess(c, h.scheduler.Status())
}
