package transport

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ErrorHandler renders every handler error as a JSON body. Client errors log
// at warn; only 5xx responses log at error.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.Error(err),
		}
		if code >= fiber.StatusInternalServerError {
			logger.Error("request error", fields...)
		} else {
			logger.Warn("request rejected", fields...)
		}

		return c.Status(code).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}
