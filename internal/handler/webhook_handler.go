package handler

import (
	"context"
	"crypto/subtle"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/escalation-engine/internal/domain"
	"github.com/kursadbilgin/escalation-engine/internal/observability"
	"github.com/kursadbilgin/escalation-engine/internal/service"
	"go.uber.org/zap"
)

const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// Ingestor processes an authenticated webhook payload.
type Ingestor interface {
	Ingest(ctx context.Context, provider domain.Provider, payload []byte) service.IngestResult
}

type WebhookHandler struct {
	ingestor    Ingestor
	verifyToken string
	logger      *zap.Logger
}

func NewWebhookHandler(ingestor Ingestor, verifyToken string, logger *zap.Logger) (*WebhookHandler, error) {
	if ingestor == nil {
		return nil, fmt.Errorf("ingestor is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{ingestor: ingestor, verifyToken: verifyToken, logger: logger}, nil
}

// RegisterWebhookRoutes mounts the provider endpoints. Each gate runs before
// its provider's POST handler; a nil gate mounts the handler ungated.
func RegisterWebhookRoutes(router fiber.Router, h *WebhookHandler, twilioGate, whatsappGate fiber.Handler) {
	webhooks := router.Group("/v1/webhooks")
	webhooks.Post("/twilio", gated(twilioGate, h.Twilio)...)
	webhooks.Get("/whatsapp", h.VerifyWhatsApp)
	webhooks.Post("/whatsapp", gated(whatsappGate, h.WhatsApp)...)
}

func gated(gate fiber.Handler, handler fiber.Handler) []fiber.Handler {
	if gate == nil {
		return []fiber.Handler{handler}
	}
	return []fiber.Handler{gate, handler}
}

// Twilio acknowledges with empty TwiML regardless of processing outcome.
func (h *WebhookHandler) Twilio(c *fiber.Ctx) error {
	h.ingest(c, domain.ProviderTwilio)

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationXML)
	return c.Status(fiber.StatusOK).SendString(emptyTwiML)
}

func (h *WebhookHandler) WhatsApp(c *fiber.Ctx) error {
	h.ingest(c, domain.ProviderWhatsApp)

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "received",
	})
}

// VerifyWhatsApp answers the subscription handshake by echoing hub.challenge.
func (h *WebhookHandler) VerifyWhatsApp(c *fiber.Ctx) error {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode != "subscribe" || h.verifyToken == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(h.verifyToken)) != 1 {
		observability.WithContextLogger(h.logger, c.UserContext()).Warn("whatsapp webhook verification rejected",
			zap.String("mode", mode),
		)
		return fiber.NewError(fiber.StatusForbidden, "verification failed")
	}

	return c.Status(fiber.StatusOK).SendString(challenge)
}

func (h *WebhookHandler) ingest(c *fiber.Ctx, provider domain.Provider) {
	// fiber reuses the request buffer after the handler returns.
	payload := append([]byte(nil), c.Body()...)

	result := h.ingestor.Ingest(c.UserContext(), provider, payload)
	observability.WithContextLogger(h.logger, c.UserContext()).Debug("webhook processed",
		zap.String("provider", provider.String()),
		zap.Int("events", result.Events),
		zap.Int("failed", result.Failed),
		zap.Bool("parseError", result.ParseError),
	)
}
