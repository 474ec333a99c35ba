package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/l-schulte/waypack-machine/internal/localfiles"
	"github.com/l-schulte/waypack-machine/internal/logging"
	"github.com/l-schulte/waypack-machine/internal/metrics"
	"github.com/l-schulte/waypack-machine/internal/overrides"
	"github.com/l-schulte/waypack-machine/internal/proxy/hooks"
	"github.com/l-schulte/waypack-machine/internal/server"
	"github.com/l-schulte/waypack-machine/internal/timeline"
)

const routeKindRegistry = "registry"

// HandlerOptions 汇总 Handler 所需的依赖，Resolver/Local/Recorder 均可为空。
type HandlerOptions struct {
	Client   *RegistryClient
	Resolver *overrides.Resolver
	Local    *localfiles.Dir
	Recorder *metrics.Recorder
	Logger   *logrus.Logger
}

// Handler 负责 /{ecosystem}/{cutoff}/{identifier} 的决策流程：
// 覆盖表 → identifier 分类 → 解析 cutoff → 回源 → 时间线过滤。
type Handler struct {
	client   *RegistryClient
	resolver *overrides.Resolver
	local    *localfiles.Dir
	recorder *metrics.Recorder
	logger   *logrus.Logger
}

// NewHandler constructs the registry handler.
func NewHandler(opts HandlerOptions) *Handler {
	return &Handler{
		client:   opts.Client,
		resolver: opts.Resolver,
		local:    opts.Local,
		recorder: opts.Recorder,
		logger:   opts.Logger,
	}
}

type requestLog struct {
	route      *server.RegistryRoute
	identifier string
	requestID  string
	started    time.Time
	upstream   string
	status     int
}

func buildHookContext(route *server.RegistryRoute, c fiber.Ctx) *hooks.RequestContext {
	if route == nil {
		return &hooks.RequestContext{Method: c.Method()}
	}
	return &hooks.RequestContext{
		Ecosystem:    route.Name,
		ModuleKey:    route.ModuleKey,
		UpstreamBase: route.UpstreamBase(),
		Method:       c.Method(),
	}
}

// Handle 实现 server.ProxyHandler。
func (h *Handler) Handle(c fiber.Ctx, route *server.RegistryRoute) error {
	entry := &requestLog{
		route:     route,
		requestID: server.RequestID(c),
		started:   time.Now(),
	}
	identifier := decodeIdentifier(wildcardPath(c))
	entry.identifier = identifier
	if identifier == "" {
		h.finish(entry, "invalid_identifier", http.StatusNotFound, nil)
		return writeError(c, fiber.StatusNotFound, codeIdentifierRequired)
	}

	decision := h.resolver.Resolve(identifier)
	switch decision.Kind {
	case overrides.Redirect:
		entry.upstream = decision.Target
		h.finish(entry, "redirect", http.StatusFound, nil)
		return redirect(c, decision.Target)
	case overrides.LocalFile:
		err := SendLocalFile(c, h.local, decision.Target)
		h.finish(entry, "local", c.Response().StatusCode(), err)
		return err
	case overrides.Literal:
		h.finish(entry, "literal", http.StatusOK, nil)
		c.Set(fiber.HeaderContentType, route.Module.ContentType)
		return c.Status(fiber.StatusOK).Send(decision.Body)
	}

	hookCtx := buildHookContext(route, c)
	def, _ := hooks.Fetch(route.ModuleKey)
	if def.ClassifyOrBare(hookCtx, identifier) == hooks.PathShaped {
		target := route.UpstreamBase() + identifier
		entry.upstream = target
		h.finish(entry, "redirect", http.StatusFound, nil)
		return redirect(c, target)
	}

	cutoff, err := timeline.ParseCutoff(c.Params("cutoff"))
	if err != nil {
		h.finish(entry, "invalid_cutoff", http.StatusBadRequest, err)
		return writePlain(c, fiber.StatusBadRequest, messageInvalidCutoff)
	}

	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	resp, err := h.client.Fetch(ctx, route, def, hookCtx, identifier)
	if err != nil {
		h.finish(entry, codeUpstreamFailed, http.StatusBadGateway, err)
		return writeError(c, fiber.StatusBadGateway, codeUpstreamFailed)
	}
	entry.upstream = resp.URL
	entry.status = resp.Status
	c.Set("X-Waypack-Upstream", resp.URL)

	if resp.Status != http.StatusOK {
		h.finish(entry, "upstream_error", resp.Status, nil)
		copyResponseHeaders(c, resp.Header)
		return c.Status(resp.Status).Send(resp.Body)
	}

	filtered, err := h.filter(def, hookCtx, identifier, resp.Body, cutoff)
	if err != nil {
		h.finish(entry, "payload_invalid", http.StatusBadGateway, err)
		return writeError(c, fiber.StatusBadGateway, codePayloadInvalid)
	}

	h.finish(entry, "filtered", http.StatusOK, nil)
	c.Set(fiber.HeaderContentType, route.Module.ContentType)
	return c.Status(fiber.StatusOK).Send(filtered)
}

func (h *Handler) filter(def hooks.Hooks, hookCtx *hooks.RequestContext, identifier string, body []byte, cutoff time.Time) ([]byte, error) {
	if def.FilterDocument == nil {
		return nil, fmt.Errorf("%w: no filter registered for %s", ErrMalformedPayload, hookCtx.ModuleKey)
	}
	filtered, err := def.FilterDocument(hookCtx, identifier, body, cutoff)
	if err != nil {
		if errors.Is(err, timeline.ErrMalformedDocument) {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		return nil, err
	}
	return filtered, nil
}

func (h *Handler) finish(entry *requestLog, decision string, status int, err error) {
	ecosystem := ""
	if entry.route != nil {
		ecosystem = entry.route.Name
	}
	h.recorder.Inc(routeKindRegistry, ecosystem, decision)
	if h.logger == nil {
		return
	}

	fields := logging.RequestFields(ecosystem, entry.identifier, decision, false)
	fields["action"] = "proxy"
	fields["upstream"] = entry.upstream
	fields["upstream_status"] = entry.status
	fields["status"] = status
	fields["elapsed_ms"] = time.Since(entry.started).Milliseconds()
	if entry.requestID != "" {
		fields["request_id"] = entry.requestID
	}
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Warn("proxy_failed")
		return
	}
	h.logger.WithFields(fields).Info("proxy_complete")
}

// decodeIdentifier 还原 npm 客户端发送的 @scope%2fname 写法，解码失败时保留原值。
// wildcardPath 返回 `*` 段。StrictRouting 关闭时 Fiber 匹配前会去掉结尾的 `/`，
// pip 的项目页 requests/ 依赖这个 `/`，这里按原始路径补回。
func wildcardPath(c fiber.Ctx) string {
	wildcard := c.Params("*")
	if wildcard != "" && !strings.HasSuffix(wildcard, "/") && strings.HasSuffix(c.Path(), "/") {
		return wildcard + "/"
	}
	return wildcard
}

func decodeIdentifier(raw string) string {
	if decoded, err := url.PathUnescape(raw); err == nil {
		return decoded
	}
	return raw
}

func redirect(c fiber.Ctx, location string) error {
	c.Set(fiber.HeaderLocation, location)
	return c.SendStatus(fiber.StatusFound)
}

func copyResponseHeaders(c fiber.Ctx, headers http.Header) {
	for key, values := range server.PassthroughHeaders(headers) {
		for _, value := range values {
			c.Append(key, value)
		}
	}
}
