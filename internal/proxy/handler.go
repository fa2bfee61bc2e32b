package proxy

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofiber/fiber/v3"
	"github.com/opencontainers/go-digest"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/imagehub/internal/fetch"
	"github.com/any-hub/imagehub/internal/imagecache"
	"github.com/any-hub/imagehub/internal/logging"
	"github.com/any-hub/imagehub/internal/server"
)

// statusClientClosedRequest 对应缓存层返回的 TaskCancelled，响应体为空。
// fasthttp 不会在客户端断开时取消 c.Context()，因此目前只有上游请求被取消
// （例如关闭服务时）才会走到这个状态码。
const statusClientClosedRequest = 499

// Handler 负责 "解析地址 → 缓存查找 → 输出图片" 的全流程，
// 任何阶段出错都会输出结构化日志，并以 JSON 错误体返回。
type Handler struct {
	logger *logrus.Logger
}

// NewHandler constructs an image handler that logs through logger.
func NewHandler(logger *logrus.Logger) *Handler {
	return &Handler{logger: logger}
}

var _ server.ImageHandler = (*Handler)(nil)

// Handle 实现 server.ImageHandler：读取 ?url= 参数，经缓存解析后输出原始图片字节。
func (h *Handler) Handle(c fiber.Ctx, route *server.CacheRoute) error {
	started := time.Now()
	requestID := server.RequestID(c)

	address := strings.TrimSpace(c.Query("url"))
	if address == "" {
		return h.writeError(c, fiber.StatusBadRequest, "url_required", "缺少 url 参数")
	}

	if host := addressHost(address); host != "" && !route.Config.AllowsHost(host) {
		h.logger.WithFields(logging.ImageFields(route.Config.Name, address, "")).
			WithFields(logrus.Fields{"action": "image", "host": host, "request_id": requestID}).
			Warn("image_host_rejected")
		return h.writeError(c, fiber.StatusForbidden, "host_not_allowed", fmt.Sprintf("不允许的图片来源: %s", host))
	}

	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	img, err := route.Cache.LoadImage(ctx, address)
	if err != nil {
		h.logResult(route, address, requestID, "", 0, started, err)
		return h.writeCacheError(c, err)
	}

	etag := entityTag(img.Data)
	h.logResult(route, address, requestID, string(img.Origin), len(img.Data), started, nil)

	c.Set(fiber.HeaderETag, etag)
	c.Set(fiber.HeaderCacheControl, cacheControl(route.ClientMaxAge))
	if matchesETag(c.Get(fiber.HeaderIfNoneMatch), etag) {
		c.Status(fiber.StatusNotModified)
		return nil
	}

	c.Set(fiber.HeaderContentType, img.ContentType())
	return c.Status(fiber.StatusOK).Send(img.Data)
}

// writeCacheError 将缓存错误映射为 HTTP 状态码；取消时只返回状态码，不写错误体。
func (h *Handler) writeCacheError(c fiber.Ctx, err error) error {
	kind := imagecache.KindOf(err)
	switch kind {
	case imagecache.KindTaskCancelled:
		c.Status(statusClientClosedRequest)
		return nil
	case imagecache.KindFailedToEncodeAddress:
		return h.writeError(c, fiber.StatusBadRequest, string(kind), imagecache.Describe(err))
	case imagecache.KindFailedToDecodeImage:
		return h.writeError(c, fiber.StatusBadGateway, string(kind), imagecache.Describe(err))
	case imagecache.KindFailedToFetch:
		payload := fiber.Map{
			"error":   string(kind),
			"message": imagecache.Describe(err),
		}
		if code := fetch.StatusCodeOf(err); code != 0 {
			payload["upstream_status"] = code
		}
		return c.Status(fiber.StatusBadGateway).JSON(payload)
	case "":
		return h.writeError(c, fiber.StatusInternalServerError, "internal_error", err.Error())
	default:
		return h.writeError(c, fiber.StatusInternalServerError, string(kind), imagecache.Describe(err))
	}
}

func (h *Handler) writeError(c fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": code, "message": message})
}

func (h *Handler) logResult(
	route *server.CacheRoute,
	address string,
	requestID string,
	origin string,
	size int,
	started time.Time,
	err error,
) {
	fields := logging.ImageFields(route.Config.Name, address, origin)
	fields["action"] = "image"
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if requestID != "" {
		fields["request_id"] = requestID
	}
	if err != nil {
		fields["error"] = err.Error()
		fields["error_kind"] = string(imagecache.KindOf(err))
		if imagecache.IsCancelled(err) {
			h.logger.WithFields(fields).Debug("image_cancelled")
			return
		}
		h.logger.WithFields(fields).Error("image_failed")
		return
	}
	fields["size"] = humanize.IBytes(uint64(size))
	h.logger.WithFields(fields).Info("image_served")
}

// entityTag 以内容摘要作为强 ETag，同一份字节在任意层级命中都得到相同的值。
func entityTag(data []byte) string {
	return `"` + digest.FromBytes(data).String() + `"`
}

// matchesETag 处理 If-None-Match 的列表、通配符与弱校验前缀。
func matchesETag(header, etag string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}
	if header == "*" {
		return true
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == etag {
			return true
		}
	}
	return false
}

func cacheControl(maxAge time.Duration) string {
	if maxAge <= 0 {
		return "no-cache"
	}
	return fmt.Sprintf("public, max-age=%d", int64(maxAge/time.Second))
}

// addressHost 提取地址中的主机名；无法解析时返回空串，交由缓存层报告编码错误。
func addressHost(address string) string {
	u, err := url.Parse(address)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
