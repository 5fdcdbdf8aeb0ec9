package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"talentscout/internal/jobs"
	"talentscout/internal/services"
)

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check requests
type HealthHandler struct {
	store     Pinger
	sessions  *services.SessionManager
	scheduler *jobs.JobScheduler
}

// NewHealthHandler creates a new health handler. scheduler may be nil.
func NewHealthHandler(store Pinger, sessions *services.SessionManager, scheduler *jobs.JobScheduler) *HealthHandler {
	return &HealthHandler{store: store, sessions: sessions, scheduler: scheduler}
}

// Handle responds with server health status
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	status := "healthy"
	code := fiber.StatusOK
	storeStatus := "ok"
	if err := h.store.Ping(ctx); err != nil {
		status = "degraded"
		code = fiber.StatusServiceUnavailable
		storeStatus = err.Error()
	}

	body := fiber.Map{
		"status":    status,
		"store":     storeStatus,
		"sessions":  h.sessions.Count(),
		"timestamp": time.Now().Format(time.RFC3339),
	}
	if h.scheduler != nil {
		body["jobs"] = h.scheduler.GetStatus()
	}
	return c.Status(code).JSON(body)
}
