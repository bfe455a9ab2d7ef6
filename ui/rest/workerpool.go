package rest

import (
	"github.com/AzielCF/az-messenger/pkg/msgworker"
	"github.com/AzielCF/az-messenger/pkg/utils"
	"github.com/dustin/go-humanize"
	"github.com/gofiber/fiber/v2"
)

// StatsProvider exposes worker pool statistics.
type StatsProvider interface {
	GetStats() msgworker.PoolStats
}

type WorkerPool struct {
	Pool StatsProvider
}

func InitRestWorkerPool(app fiber.Router, pool StatsProvider) WorkerPool {
	rest := WorkerPool{Pool: pool}
	app.Get("/workers/stats", rest.GetStats)
	return rest
}

// GetStats returns real-time worker pool statistics
func (h *WorkerPool) GetStats(c *fiber.Ctx) error {
	if h.Pool == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(utils.ResponseData{
			Status:  fiber.StatusServiceUnavailable,
			Code:    "SERVICE_UNAVAILABLE",
			Message: "worker pool not initialized",
		})
	}

	stats := h.Pool.GetStats()
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Worker pool stats",
		Results: map[string]any{
			"stats": stats,
			"summary": map[string]string{
				"started":    humanize.Time(stats.StartedAt),
				"dispatched": humanize.Comma(stats.TotalDispatched),
				"processed":  humanize.Comma(stats.TotalProcessed),
				"dropped":    humanize.Comma(stats.TotalDropped),
				"errors":     humanize.Comma(stats.TotalErrors),
			},
		},
	})
}
