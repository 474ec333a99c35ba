package proxy

import (
	"errors"
	"mime"
	"path"

	"github.com/gofiber/fiber/v3"

	"github.com/l-schulte/waypack-machine/internal/localfiles"
)

// SendLocalFile 从本地文件目录返回 rel 指向的文件，缺失或越界时返回 404 纯文本。
func SendLocalFile(c fiber.Ctx, dir *localfiles.Dir, rel string) error {
	if dir == nil {
		return writePlain(c, fiber.StatusNotFound, "Local file not found: "+rel)
	}
	f, info, err := dir.Open(rel)
	if err != nil {
		if errors.Is(err, localfiles.ErrNotFound) || errors.Is(err, localfiles.ErrInvalidPath) {
			return writePlain(c, fiber.StatusNotFound, "Local file not found: "+rel)
		}
		return err
	}

	contentType := mime.TypeByExtension(path.Ext(rel))
	if contentType == "" {
		contentType = fiber.MIMEOctetStream
	}
	c.Set(fiber.HeaderContentType, contentType)
	c.Status(fiber.StatusOK)
	// SendStream 在响应写完后关闭实现了 io.Closer 的 reader
	return c.SendStream(f, int(info.Size()))
}
