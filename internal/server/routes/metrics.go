package routes

import (
	"bytes"

	"github.com/gofiber/fiber/v3"

	"github.com/l-schulte/waypack-machine/internal/metrics"
)

// RegisterMetricsRoutes 以 Prometheus 文本格式输出请求计数。
func RegisterMetricsRoutes(app *fiber.App, recorder *metrics.Recorder) {
	if app == nil || recorder == nil {
		return
	}
	app.Get("/-/metrics", func(c fiber.Ctx) error {
		var buf bytes.Buffer
		if err := recorder.WriteText(&buf); err != nil {
			return err
		}
		c.Set(fiber.HeaderContentType, metrics.ContentType)
		return c.Send(buf.Bytes())
	})
}
