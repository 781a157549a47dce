package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/civic-desk/issue-sync/internal/observability"
	"github.com/civic-desk/issue-sync/internal/persistence"
	"github.com/civic-desk/issue-sync/internal/store"
)

// Pinger is a dependency checked by the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler responds to liveness, readiness and metrics probes.
type HealthHandler struct {
	serviceName string
	version     string
	deps        map[string]Pinger
	store       *store.Store
	metrics     *observability.Metrics
}

// NewHealthHandler returns a new handler instance. Dependencies whose Ping
// reports persistence.ErrNotConfigured are listed as disabled.
func NewHealthHandler(serviceName, version string, st *store.Store, metrics *observability.Metrics, deps map[string]Pinger) *HealthHandler {
	return &HealthHandler{serviceName: serviceName, version: version, deps: deps, store: st, metrics: metrics}
}

// Live reports service liveness.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

// Ready reports readiness by checking configured dependencies.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	depStatus := fiber.Map{}
	ready := true
	for name, dep := range h.deps {
		err := dep.Ping(ctx)
		switch {
		case err == nil:
			depStatus[name] = "ok"
		case errors.Is(err, persistence.ErrNotConfigured):
			depStatus[name] = "disabled"
		default:
			depStatus[name] = err.Error()
			ready = false
		}
	}

	if ready {
		return c.JSON(fiber.Map{
			"status":        "ready",
			"dependencies":  depStatus,
			"store_version": h.store.Snapshot().Version,
		})
	}

	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "DEPENDENCY_UNAVAILABLE",
			"message": "one or more dependencies unavailable",
			"details": depStatus,
		},
	})
}

// Metrics exposes counters and the store size.
func (h *HealthHandler) Metrics(c *fiber.Ctx) error {
	snap := h.store.Snapshot()
	return c.JSON(fiber.Map{
		"metrics": h.metrics.Snapshot(),
		"store": fiber.Map{
			"version":     snap.Version,
			"issues":      snap.Len(),
			"departments": len(snap.Departments),
			"updated_at":  snap.UpdatedAt,
		},
	})
}
