package middleware

import (
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"task-manager/internal/apperror"
	"task-manager/pkg/logger"
)

// ErrorHandler recovers panics and logs every request with its outcome.
func ErrorHandler() fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				errMsg := fmt.Sprintf("Recovered from panic: %v", r)
				logger.ErrorLogger.Error(errMsg, zap.String("stack", string(debug.Stack())))
				err = RespondError(c, errors.New(errMsg))
			}
			logger.RequestLogger.Info("Request handled",
				zap.String("method", c.Method()),
				zap.String("url", c.OriginalURL()),
				zap.Int("status", c.Response().StatusCode()),
				zap.Duration("latency", time.Since(start)),
			)
		}()
		return c.Next()
	}
}

// RespondError writes err in the error envelope. Unclassified errors are
// logged and reported as a generic 500.
func RespondError(c *fiber.Ctx, err error) error {
	status := apperror.Status(err)
	if status == fiber.StatusInternalServerError {
		logger.ErrorLogger.Error("Internal error", zap.String("url", c.OriginalURL()), zap.Error(err))
	}
	return c.Status(status).JSON(fiber.Map{
		"message": apperror.Message(err),
		"success": false,
		"status":  status,
	})
}

// FiberErrorHandler renders errors that escape the handlers, such as unknown
// routes or oversized bodies, in the same envelope.
func FiberErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{
			"message": fe.Message,
			"success": false,
			"status":  fe.Code,
		})
	}
	return RespondError(c, err)
}
