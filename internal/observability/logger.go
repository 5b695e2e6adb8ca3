package observability

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	serviceName         = "escalation-engine"
	CorrelationIDHeader = "X-Correlation-ID"

	// Twilio sends the same token on every retry of one callback.
	twilioIdempotencyHeader = "I-Twilio-Idempotency-Token"
	maxCorrelationIDLength  = 128
)

type correlationIDKey struct{}

// NewLogger builds the JSON production logger used by every binary.
func NewLogger(level string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if text := strings.ToLower(strings.TrimSpace(level)); text != "" {
		if err := lvl.UnmarshalText([]byte(text)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.InitialFields = map[string]any{"service": serviceName}

	logger, err := cfg.Build(zap.AddCaller())
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, correlationIDKey{}, correlationID)
}

func CorrelationIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	correlationID, ok := ctx.Value(correlationIDKey{}).(string)
	return correlationID, ok && correlationID != ""
}

// WithRunCorrelation tags a background run (scheduler tick, CLI command) with
// a fresh correlation id unless ctx already carries one.
func WithRunCorrelation(ctx context.Context) context.Context {
	if _, ok := CorrelationIDFromContext(ctx); ok {
		return ctx
	}
	return WithCorrelationID(ctx, "run-"+uuid.NewString())
}

// WithContextLogger adds the correlationId field when ctx carries one.
func WithContextLogger(logger *zap.Logger, ctx context.Context) *zap.Logger {
	if logger == nil {
		return nil
	}
	if correlationID, ok := CorrelationIDFromContext(ctx); ok {
		return logger.With(zap.String("correlationId", correlationID))
	}
	return logger
}

// CorrelationMiddleware takes the request correlation id from X-Correlation-ID,
// then from the provider idempotency token, and mints one otherwise. The id is
// echoed in the response and stored in the request user context.
func CorrelationMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		correlationID := requestCorrelationID(c)
		c.Set(CorrelationIDHeader, correlationID)
		c.SetUserContext(WithCorrelationID(c.UserContext(), correlationID))
		return c.Next()
	}
}

func requestCorrelationID(c *fiber.Ctx) string {
	for _, header := range []string{CorrelationIDHeader, twilioIdempotencyHeader} {
		value := strings.TrimSpace(c.Get(header))
		if value != "" && len(value) <= maxCorrelationIDLength {
			return value
		}
	}
	return uuid.NewString()
}
