package server

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ImageHandler describes the component that serves a single image request
// for a resolved cache. It allows injecting fake handlers during tests.
type ImageHandler interface {
	Handle(fiber.Ctx, *CacheRoute) error
}

// ImageHandlerFunc adapts a function to the ImageHandler interface.
type ImageHandlerFunc func(fiber.Ctx, *CacheRoute) error

// Handle makes ImageHandlerFunc satisfy ImageHandler.
func (f ImageHandlerFunc) Handle(c fiber.Ctx, route *CacheRoute) error {
	return f(c, route)
}

// AppOptions controls how the Fiber application is assembled.
type AppOptions struct {
	Logger   *logrus.Logger
	Registry *CacheRegistry
	Images   ImageHandler
}

const (
	contextKeyRoute     = "_imagehub_route"
	contextKeyRequestID = "_imagehub_request_id"
)

// NewApp builds a Fiber application with request-ID middleware, cache
// resolution for /images/:cache and structured error handling.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("cache registry is required")
	}
	if opts.Images == nil {
		return nil, errors.New("image handler is required")
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestIDMiddleware())

	app.Get("/images/:cache", cacheRouteMiddleware(opts), func(c fiber.Ctx) error {
		route, ok := RouteFromContext(c)
		if !ok {
			return renderCacheNotFound(c, opts.Logger, c.Params("cache"))
		}
		return opts.Images.Handle(c, route)
	})

	return app, nil
}

// requestIDMiddleware 为每个请求生成请求 ID，写入 Locals 与响应头。
func requestIDMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// cacheRouteMiddleware 基于路径参数 :cache 查找 CacheRoute。
func cacheRouteMiddleware(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		name := c.Params("cache")
		route, ok := opts.Registry.Lookup(name)
		if !ok {
			return renderCacheNotFound(c, opts.Logger, name)
		}
		c.Locals(contextKeyRoute, route)
		return c.Next()
	}
}

func renderCacheNotFound(c fiber.Ctx, logger *logrus.Logger, name string) error {
	logger.WithFields(logrus.Fields{
		"action":     "cache_lookup",
		"cache":      name,
		"request_id": RequestID(c),
	}).Warn("cache not found")

	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": "cache_not_found",
	})
}

// RouteFromContext returns the CacheRoute resolved by the router middleware.
func RouteFromContext(c fiber.Ctx) (*CacheRoute, bool) {
	if value := c.Locals(contextKeyRoute); value != nil {
		if route, ok := value.(*CacheRoute); ok {
			return route, true
		}
	}
	return nil, false
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}
