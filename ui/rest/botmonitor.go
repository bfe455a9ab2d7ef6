package rest

import (
	"github.com/AzielCF/az-messenger/pkg/botmonitor"
	"github.com/AzielCF/az-messenger/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type MonitorStatsProvider interface {
	GetStats() botmonitor.Stats
}

type BotMonitor struct {
	Monitor MonitorStatsProvider
}

func InitRestBotMonitor(app fiber.Router, monitor MonitorStatsProvider) BotMonitor {
	rest := BotMonitor{Monitor: monitor}
	app.Get("/monitor", rest.GetStats)
	return rest
}

// GetStats returns relay counters and the most recent relay events.
func (h *BotMonitor) GetStats(c *fiber.Ctx) error {
	if h.Monitor == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(utils.ResponseData{
			Status:  fiber.StatusServiceUnavailable,
			Code:    "SERVICE_UNAVAILABLE",
			Message: "relay monitor not initialized",
		})
	}

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Relay monitor stats",
		Results: h.Monitor.GetStats(),
	})
}
