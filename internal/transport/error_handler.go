package transport

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/escalation-engine/internal/domain"
	"github.com/kursadbilgin/escalation-engine/internal/observability"
	"go.uber.org/zap"
)

func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := err.Error()

		var (
			fiberErr *fiber.Error
			authErr  *domain.AuthError
			limitErr *domain.RateLimitedError
		)
		switch {
		case errors.As(err, &fiberErr):
			code = fiberErr.Code
		case errors.As(err, &authErr):
			code = fiber.StatusUnauthorized
		case errors.As(err, &limitErr):
			code = fiber.StatusTooManyRequests
			if seconds := int(limitErr.RetryAfter.Seconds()); seconds > 0 {
				c.Set(fiber.HeaderRetryAfter, strconv.Itoa(seconds))
			}
		}

		log := observability.WithContextLogger(logger, c.UserContext())
		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.Error(err),
		}
		if code >= fiber.StatusInternalServerError {
			log.Error("request error", fields...)
			message = "internal server error"
		} else {
			log.Warn("request rejected", fields...)
		}

		return c.Status(code).JSON(fiber.Map{
			"error": message,
		})
	}
}
