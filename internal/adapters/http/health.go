package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

const readyTimeout = 3 * time.Second

// Check outcomes reported by /v1/ready.
const (
	checkOK            = "ok"
	checkNotConfigured = "not configured"
)

// depCheck reports one dependency. ok is false when the dependency should
// fail readiness.
type depCheck struct {
	name string
	run  func(ctx context.Context) (status string, ok bool)
}

// optional checks pass when the dependency is absent and fail when it is
// configured but unreachable. The search backend has no absent state.
func (d *Dependencies) checks() []depCheck {
	return []depCheck{
		{"database", func(ctx context.Context) (string, bool) {
			switch {
			case d.InMemory:
				return "in-memory", true
			case d.DB == nil:
				return checkNotConfigured, false
			}
			return errCheck(d.DB.Ping(ctx))
		}},
		{"nats", func(context.Context) (string, bool) {
			switch {
			case d.NATS == nil:
				return checkNotConfigured, true
			case !d.NATS.IsConnected():
				return "disconnected", false
			}
			return checkOK, true
		}},
		{"cache", func(ctx context.Context) (string, bool) {
			if d.Cache == nil {
				return checkNotConfigured, true
			}
			return errCheck(d.Cache.Ping(ctx))
		}},
	}
}

func errCheck(err error) (string, bool) {
	if err != nil {
		return "error: " + err.Error(), false
	}
	return checkOK, true
}

// HealthHandler reports liveness, the build version and uptime.
func HealthHandler(deps *Dependencies) fiber.Handler {
	startedAt := time.Now()
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"uptime":  time.Since(startedAt).Round(time.Second).String(),
			"version": version,
		})
	}
}

// ReadyHandler answers 503 with the per-dependency checks when any check fails.
func ReadyHandler(deps *Dependencies) fiber.Handler {
	depChecks := deps.checks()
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), readyTimeout)
		defer cancel()

		checks := make(map[string]string, len(depChecks))
		ready := true
		for _, p := range depChecks {
			status, ok := p.run(ctx)
			checks[p.name] = status
			ready = ready && ok
		}

		if !ready {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "not ready", "checks": checks})
		}
		return c.JSON(fiber.Map{"status": "ready", "checks": checks})
	}
}
