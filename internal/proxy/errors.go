package proxy

import (
	"errors"

	"github.com/gofiber/fiber/v3"
)

// ErrMalformedPayload 表示上游返回的内容无法按 JSON 文档解析。
var ErrMalformedPayload = errors.New("malformed upstream payload")

// 错误码，同时作为 JSON 响应的 error 字段。
const (
	codeUpstreamFailed     = "upstream_failed"
	codePayloadInvalid     = "upstream_payload_invalid"
	codeIdentifierRequired = "identifier_required"
	codeInvalidTarget      = "invalid_target"
	messageInvalidCutoff   = "Invalid timestamp format"
)

func writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func writePlain(c fiber.Ctx, status int, message string) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.Status(status).SendString(message)
}
