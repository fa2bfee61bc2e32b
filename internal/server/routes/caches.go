package routes

import (
	"github.com/dustin/go-humanize"
	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/imagehub/internal/imagecache"
	"github.com/any-hub/imagehub/internal/server"
)

// RegisterCacheRoutes 暴露 /-/caches 诊断接口与手动刷新入口，供 SRE 查询各缓存实例状态。
func RegisterCacheRoutes(app *fiber.App, registry *server.CacheRegistry, logger *logrus.Logger) {
	if app == nil || registry == nil {
		return
	}

	app.Get("/-/caches", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"caches": encodeCaches(registry.List()),
		})
	})

	app.Get("/-/caches/:name", func(c fiber.Ctx) error {
		route, ok := registry.Lookup(c.Params("name"))
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "cache_not_found"})
		}
		return c.JSON(encodeCache(route))
	})

	app.Post("/-/caches/:name/refresh", func(c fiber.Ctx) error {
		route, ok := registry.Lookup(c.Params("name"))
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "cache_not_found"})
		}

		fields := logrus.Fields{
			"action":     "refresh",
			"cache":      route.Config.Name,
			"request_id": server.RequestID(c),
		}
		if err := route.Cache.Refresh(c.Context()); err != nil {
			if logger != nil {
				logger.WithError(err).WithFields(fields).Error("cache_refresh_failed")
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":   string(imagecache.KindOf(err)),
				"message": imagecache.Describe(err),
			})
		}
		if logger != nil {
			logger.WithFields(fields).Info("cache_refresh_requested")
		}
		return c.JSON(encodeCache(route))
	})
}

type cachePayload struct {
	Name         string           `json:"name"`
	Path         string           `json:"path"`
	Mode         string           `json:"mode"`
	AllowedHosts []string         `json:"allowed_hosts,omitempty"`
	DiskUsage    string           `json:"disk_usage"`
	Stats        imagecache.Stats `json:"stats"`
}

func encodeCaches(routes []*server.CacheRoute) []cachePayload {
	if len(routes) == 0 {
		return []cachePayload{}
	}
	result := make([]cachePayload, 0, len(routes))
	for _, route := range routes {
		result = append(result, encodeCache(route))
	}
	return result
}

func encodeCache(route *server.CacheRoute) cachePayload {
	stats := route.Cache.Stats()
	return cachePayload{
		Name:         route.Config.Name,
		Path:         route.Config.Path,
		Mode:         route.Config.Mode,
		AllowedHosts: append([]string(nil), route.Config.AllowedHosts...),
		DiskUsage:    humanize.IBytes(uint64(stats.DiskBytes)),
		Stats:        stats,
	}
}
