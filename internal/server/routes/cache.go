package routes

import (
	"github.com/gofiber/fiber/v3"

	"github.com/l-schulte/waypack-machine/internal/proxy"
)

// RegisterCacheRoutes 挂载两种拉取缓存入口。
func RegisterCacheRoutes(app *fiber.App, handler *proxy.CacheHandler) {
	if app == nil || handler == nil {
		return
	}
	app.Get("/request/*", handler.HandleRequest)
	app.Get("/custom_cache/*", handler.HandleTree)
}
