package proxy

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/l-schulte/waypack-machine/internal/logging"
	"github.com/l-schulte/waypack-machine/internal/server"
)

// Forwarder 按 route.ModuleKey 分发到 Bind 过的处理器，未绑定的模块返回 500。
// 处理器 panic 时返回 500 JSON 而不是中断连接。
type Forwarder struct {
	logger *logrus.Logger
	bound  sync.Map
}

// NewForwarder 创建一个尚未绑定任何模块的 Forwarder。
func NewForwarder(logger *logrus.Logger) *Forwarder {
	return &Forwarder{logger: logger}
}

// Bind 为当前 Forwarder 绑定模块处理器。
func (f *Forwarder) Bind(key string, handler server.ProxyHandler) {
	if key = normalizeModuleKey(key); key == "" || handler == nil {
		return
	}
	f.bound.Store(key, handler)
}

// Handle 实现 server.ProxyHandler。
func (f *Forwarder) Handle(c fiber.Ctx, route *server.RegistryRoute) (err error) {
	handler := f.lookup(route)
	if handler == nil {
		return f.fail(c, route, "module_handler_missing", nil)
	}
	defer func() {
		if r := recover(); r != nil {
			err = f.fail(c, route, "module_handler_panic", fmt.Errorf("panic: %v", r))
		}
	}()
	return handler.Handle(c, route)
}

func (f *Forwarder) lookup(route *server.RegistryRoute) server.ProxyHandler {
	if route == nil {
		return nil
	}
	if value, ok := f.bound.Load(normalizeModuleKey(route.ModuleKey)); ok {
		return value.(server.ProxyHandler)
	}
	return nil
}

func (f *Forwarder) fail(c fiber.Ctx, route *server.RegistryRoute, code string, cause error) error {
	requestID := server.RequestID(c)
	if f.logger != nil {
		ecosystem, moduleKey := "", ""
		if route != nil {
			ecosystem, moduleKey = route.Name, route.ModuleKey
		}
		fields := logging.RequestFields(ecosystem, "", code, false)
		fields["action"] = "proxy"
		fields["module_key"] = moduleKey
		fields["error"] = code
		if requestID != "" {
			fields["request_id"] = requestID
		}
		msg := "module handler unavailable"
		if cause != nil {
			msg = cause.Error()
		}
		f.logger.WithFields(fields).Error(msg)
	}
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": code})
}

func normalizeModuleKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
