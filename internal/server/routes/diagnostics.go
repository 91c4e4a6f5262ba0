package routes

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"

	"github.com/photo365/photo365/internal/memo"
	"github.com/photo365/photo365/internal/metrics"
	"github.com/photo365/photo365/internal/version"
)

type cacheStatsPayload struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Loads     int64 `json:"loads"`
	Evictions int64 `json:"evictions"`
	Size      int   `json:"size"`
}

// RegisterDiagnosticsRoutes 暴露 /-/status 与 /-/metrics 诊断接口。
// 未启用指标时 /-/metrics 返回 503。
func RegisterDiagnosticsRoutes(app *fiber.App, svc Gallery) {
	if app == nil || svc == nil {
		return
	}

	app.Get("/-/status", func(c fiber.Ctx) error {
		folders, images := svc.CacheStats()
		return c.JSON(fiber.Map{
			"version": version.Full(),
			"caches": fiber.Map{
				"folders": encodeCacheStats(folders),
				"images":  encodeCacheStats(images),
			},
			"metrics_enabled": metrics.IsEnabled(),
		})
	})

	app.Get("/-/metrics", adaptor.HTTPHandler(metrics.Handler()))
}

func encodeCacheStats(s memo.Stats) cacheStatsPayload {
	return cacheStatsPayload{
		Hits:      s.Hits,
		Misses:    s.Misses,
		Loads:     s.Loads,
		Evictions: s.Evictions,
		Size:      s.Size,
	}
}
