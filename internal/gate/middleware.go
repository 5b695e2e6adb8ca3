package gate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/escalation-engine/internal/domain"
	"github.com/kursadbilgin/escalation-engine/internal/observability"
	"github.com/kursadbilgin/escalation-engine/internal/ratelimit"
	"go.uber.org/zap"
)

// RateLimiter decides whether a client key may proceed.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (ratelimit.Decision, error)
}

// Options configures a Gate for one provider endpoint.
type Options struct {
	Verifier *Verifier
	Limiter  RateLimiter
	// PublicBaseURL is prefixed to the request URI for URL-signing schemes.
	PublicBaseURL string
	// AuthFailureStatus is the status returned on signature failures.
	AuthFailureStatus int
	Logger            *zap.Logger
	Metrics           *observability.Metrics
}

// Gate rejects inbound webhook calls that are unsigned or over the rate limit.
type Gate struct {
	verifier      *Verifier
	limiter       RateLimiter
	publicBaseURL string
	authStatus    int
	logger        *zap.Logger
	metrics       *observability.Metrics
}

func New(opts Options) (*Gate, error) {
	if opts.Verifier == nil {
		return nil, fmt.Errorf("signature verifier is required")
	}
	if opts.Limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if opts.AuthFailureStatus == 0 {
		opts.AuthFailureStatus = fiber.StatusUnauthorized
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Gate{
		verifier:      opts.Verifier,
		limiter:       opts.Limiter,
		publicBaseURL: strings.TrimRight(opts.PublicBaseURL, "/"),
		authStatus:    opts.AuthFailureStatus,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
	}, nil
}

func (g *Gate) Handler() fiber.Handler {
	provider := g.verifier.Config().Provider.String()

	return func(c *fiber.Ctx) error {
		key := ClientKey(c)
		logger := observability.WithContextLogger(g.logger, c.UserContext()).With(
			zap.String("provider", provider),
			zap.String("clientKey", key),
		)

		decision, err := g.limiter.Allow(c.UserContext(), key)
		if err != nil {
			// Limiter errors fail open.
			logger.Warn("rate limiter unavailable, admitting request", zap.Error(err))
		} else {
			setRateLimitHeaders(c, decision)
			if !decision.Allowed {
				g.reject(logger, provider, "rate_limited")
				retryAfter := int(decision.RetryAfter.Seconds())
				c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"error":      "too many requests",
					"retryAfter": retryAfter,
				})
			}
		}

		if !g.verifier.Enabled() {
			logger.Warn("webhook signature secret not configured, accepting unsigned request")
			g.accept(logger, provider, "unsigned_dev_mode")
			return c.Next()
		}

		verifyErr := g.verifier.Verify(SignedRequest{
			Signature: c.Get(g.verifier.Config().Header),
			Body:      c.Body(),
			URL:       g.publicBaseURL + c.OriginalURL(),
		})
		if verifyErr != nil {
			reason := "invalid_signature"
			var authErr *domain.AuthError
			if errors.As(verifyErr, &authErr) {
				reason = strings.ReplaceAll(authErr.Reason, " ", "_")
			}
			g.reject(logger, provider, reason)
			return fiber.NewError(g.authStatus, "invalid webhook signature")
		}

		g.accept(logger, provider, "verified")
		return c.Next()
	}
}

func (g *Gate) accept(logger *zap.Logger, provider string, reason string) {
	logger.Info("webhook gate accepted", zap.String("reason", reason))
	g.metrics.IncGateDecision(provider, "accept", reason)
}

func (g *Gate) reject(logger *zap.Logger, provider string, reason string) {
	logger.Warn("webhook gate rejected", zap.String("reason", reason))
	g.metrics.IncGateDecision(provider, "reject", reason)
}

func setRateLimitHeaders(c *fiber.Ctx, decision ratelimit.Decision) {
	c.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
	c.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	if !decision.ResetAt.IsZero() {
		c.Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
	}
}
