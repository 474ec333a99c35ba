package proxy

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/l-schulte/waypack-machine/internal/cache"
	"github.com/l-schulte/waypack-machine/internal/logging"
	"github.com/l-schulte/waypack-machine/internal/metrics"
	"github.com/l-schulte/waypack-machine/internal/server"
)

const (
	routeKindRequest = "request"
	routeKindTree    = "custom_cache"
	treeSeparator    = "/resource/"
)

// CacheHandler 处理 /request/* 与 /custom_cache/* 两种拉取缓存路由。
type CacheHandler struct {
	pull     *cache.PullThrough
	recorder *metrics.Recorder
	logger   *logrus.Logger
}

// NewCacheHandler 构造缓存路由处理器，recorder 可为空。
func NewCacheHandler(pull *cache.PullThrough, recorder *metrics.Recorder, logger *logrus.Logger) *CacheHandler {
	return &CacheHandler{pull: pull, recorder: recorder, logger: logger}
}

// HandleRequest 服务 /request/<url>，整条 URL（含查询串）作为缓存定位。
func (h *CacheHandler) HandleRequest(c fiber.Ctx) error {
	raw := repairScheme(wildcardPath(c))
	if query := string(c.Request().URI().QueryString()); query != "" {
		raw += "?" + query
	}
	target, err := cache.RequestTarget(raw)
	if err != nil {
		return h.reject(c, routeKindRequest, raw, err)
	}
	return h.serve(c, routeKindRequest, target)
}

// HandleTree 服务 /custom_cache/<base>/resource/<sub>，以第一个 /resource/ 为分隔。
func (h *CacheHandler) HandleTree(c fiber.Ctx) error {
	raw := repairScheme(wildcardPath(c))
	base, sub, ok := strings.Cut(raw, treeSeparator)
	if !ok {
		return h.reject(c, routeKindTree, raw, cache.ErrInvalidLocator)
	}
	target, err := cache.TreeTarget(base, sub, string(c.Request().URI().QueryString()))
	if err != nil {
		return h.reject(c, routeKindTree, raw, err)
	}
	return h.serve(c, routeKindTree, target)
}

func (h *CacheHandler) serve(c fiber.Ctx, kind string, target cache.Target) error {
	started := time.Now()
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	res, err := h.pull.GetOrFetch(ctx, target)
	if err != nil {
		h.finish(c, kind, target, "failed", 0, false, started, err)
		if errors.Is(err, cache.ErrInvalidLocator) {
			return writeError(c, fiber.StatusBadRequest, codeInvalidTarget)
		}
		return writeError(c, fiber.StatusBadGateway, codeUpstreamFailed)
	}

	c.Set("X-Waypack-Upstream", target.URL)
	c.Set("X-Waypack-Cache-Hit", strconv.FormatBool(res.CacheHit))

	if res.Status < 200 || res.Status > 299 {
		h.finish(c, kind, target, "upstream_error", res.Status, false, started, nil)
		copyResponseHeaders(c, res.Header)
		return c.Status(res.Status).Send(res.Body)
	}

	outcome := "miss"
	if res.CacheHit {
		outcome = "hit"
	}
	h.finish(c, kind, target, outcome, res.Status, res.CacheHit, started, res.StoreErr)
	c.Set(fiber.HeaderContentType, res.ContentType)
	return c.Status(fiber.StatusOK).Send(res.Body)
}

func (h *CacheHandler) reject(c fiber.Ctx, kind, raw string, err error) error {
	h.recorder.Inc(kind, "", "invalid_target")
	if h.logger != nil {
		fields := logging.RequestFields("", raw, "invalid_target", false)
		fields["action"] = "cache"
		fields["route"] = kind
		fields["request_id"] = server.RequestID(c)
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Warn("cache_rejected")
	}
	return writeError(c, fiber.StatusBadRequest, codeInvalidTarget)
}

func (h *CacheHandler) finish(c fiber.Ctx, kind string, target cache.Target, outcome string, status int, hit bool, started time.Time, err error) {
	h.recorder.Inc(kind, "", outcome)
	if h.logger == nil {
		return
	}
	fields := logging.RequestFields("", target.Origin, outcome, hit)
	fields["action"] = "cache"
	fields["route"] = kind
	fields["request_id"] = server.RequestID(c)
	fields["upstream"] = target.URL
	fields["upstream_status"] = status
	fields["locator"] = target.Locator.Path
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Warn("cache_failed")
		return
	}
	h.logger.WithFields(fields).Info("cache_complete")
}

// repairScheme 还原被路由层合并斜杠后的 "https:/host"。
func repairScheme(raw string) string {
	for _, scheme := range []string{"https:", "http:"} {
		if strings.HasPrefix(raw, scheme+"/") && !strings.HasPrefix(raw, scheme+"//") {
			return scheme + "//" + strings.TrimPrefix(raw, scheme+"/")
		}
	}
	return raw
}

