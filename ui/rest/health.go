package rest

import (
	"context"
	"time"

	"github.com/AzielCF/az-messenger/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

const healthCheckTimeout = 2 * time.Second

// Pinger is a dependency the health endpoint checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type Health struct {
	ServerID string
	Database Pinger
	// Valkey is nil when sessions are kept in memory.
	Valkey Pinger
}

type componentStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func InitRestHealth(app fiber.Router, serverID string, database, valkey Pinger) Health {
	rest := Health{ServerID: serverID, Database: database, Valkey: valkey}
	app.Get("/health", rest.GetStatus)
	return rest
}

func (h *Health) GetStatus(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), healthCheckTimeout)
	defer cancel()

	healthy := true
	components := map[string]componentStatus{}
	check := func(name string, p Pinger) {
		if p == nil {
			components[name] = componentStatus{Status: "disabled"}
			return
		}
		if err := p.Ping(ctx); err != nil {
			healthy = false
			components[name] = componentStatus{Status: "down", Error: err.Error()}
			return
		}
		components[name] = componentStatus{Status: "up"}
	}
	check("database", h.Database)
	check("valkey", h.Valkey)

	results := map[string]any{
		"server_id":  h.ServerID,
		"components": components,
	}
	if !healthy {
		return c.Status(fiber.StatusServiceUnavailable).JSON(utils.ResponseData{
			Status:  fiber.StatusServiceUnavailable,
			Code:    "SERVICE_UNAVAILABLE",
			Message: "One or more dependencies are down",
			Results: results,
		})
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Healthy",
		Results: results,
	})
}
