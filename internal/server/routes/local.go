package routes

import (
	"github.com/gofiber/fiber/v3"

	"github.com/l-schulte/waypack-machine/internal/localfiles"
	"github.com/l-schulte/waypack-machine/internal/overrides"
	"github.com/l-schulte/waypack-machine/internal/proxy"
)

// RegisterLocalRoutes 挂载 /local/* 静态文件与 /local_config 覆盖表查看接口。
// table 为 nil 表示启动时没有找到覆盖表。
func RegisterLocalRoutes(app *fiber.App, dir *localfiles.Dir, table *overrides.Table) {
	if app == nil {
		return
	}

	app.Get("/local/*", func(c fiber.Ctx) error {
		return proxy.SendLocalFile(c, dir, c.Params("*"))
	})

	app.Get("/local_config", func(c fiber.Ctx) error {
		if table == nil {
			c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
			return c.Status(fiber.StatusNotFound).SendString("Local packages configuration not found")
		}
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Send(table.Raw())
	})
}
