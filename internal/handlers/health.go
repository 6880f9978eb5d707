package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"nodelink/internal/execution"
	"nodelink/internal/services"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	projects *services.ProjectService
	tracker  *execution.ExecutionTracker
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(projects *services.ProjectService, tracker *execution.ExecutionTracker) *HealthHandler {
	return &HealthHandler{projects: projects, tracker: tracker}
}

// Handle responds with server health status.
// A failing store makes the server unhealthy; a failing Redis only degrades it.
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	status := "healthy"
	code := fiber.StatusOK

	store := fiber.Map{"backend": h.projects.StoreName(), "status": "ok"}
	if err := h.projects.PingStore(ctx); err != nil {
		store["status"] = "error"
		store["error"] = err.Error()
		status = "unhealthy"
		code = fiber.StatusServiceUnavailable
	}

	redis := fiber.Map{"status": "disabled"}
	if configured, err := h.projects.PingRedis(ctx); configured {
		redis["status"] = "ok"
		if err != nil {
			redis["status"] = "error"
			redis["error"] = err.Error()
			if status == "healthy" {
				status = "degraded"
			}
		}
	}

	if h.tracker != nil && h.tracker.IsDraining() {
		status = "draining"
		code = fiber.StatusServiceUnavailable
	}

	active := int64(0)
	if h.tracker != nil {
		active = h.tracker.Active()
	}

	return c.Status(code).JSON(fiber.Map{
		"status":      status,
		"store":       store,
		"redis":       redis,
		"active_runs": active,
		"timestamp":   time.Now().Format(time.RFC3339),
	})
}
