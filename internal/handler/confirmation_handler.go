package handler

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/escalation-engine/internal/domain"
	"github.com/kursadbilgin/escalation-engine/internal/observability"
	"github.com/kursadbilgin/escalation-engine/internal/service"
	"go.uber.org/zap"
)

const (
	sayVoice    = "alice"
	sayLanguage = "tr-TR"

	pickedUpPrompt     = "Teşekkür ederiz. Transfer hasta alındı olarak işaretlendi."
	acknowledgedPrompt = "Anladık. Transfer durumu güncellendi. İyi günler."
	invalidPrompt      = "Geçersiz seçim. İyi günler."
	errorPrompt        = "Sistemde bir hata oluştu. Lütfen daha sonra tekrar deneyin."
)

// Confirmer applies a keypad answer to a transfer.
type Confirmer interface {
	Confirm(ctx context.Context, in service.ConfirmationInput) (domain.ConfirmationAction, error)
}

type twimlSay struct {
	Voice    string `xml:"voice,attr"`
	Language string `xml:"language,attr"`
	Text     string `xml:",chardata"`
}

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Say     twimlSay `xml:"Say"`
}

type ConfirmationHandler struct {
	confirmer Confirmer
	logger    *zap.Logger
}

func NewConfirmationHandler(confirmer Confirmer, logger *zap.Logger) (*ConfirmationHandler, error) {
	if confirmer == nil {
		return nil, fmt.Errorf("confirmer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfirmationHandler{confirmer: confirmer, logger: logger}, nil
}

func RegisterConfirmationRoutes(router fiber.Router, h *ConfirmationHandler, gate fiber.Handler) {
	router.Post(service.ConfirmationCallbackPath, gated(gate, h.Confirm)...)
}

func (h *ConfirmationHandler) Confirm(c *fiber.Ctx) error {
	in := service.ConfirmationInput{
		TransferID:   c.FormValue("transfer_id", c.Query("transfer_id")),
		Digits:       c.FormValue("Digits"),
		CallSID:      c.FormValue("CallSid"),
		ExecutionSID: c.FormValue("ExecutionSid"),
	}

	action, err := h.confirmer.Confirm(c.UserContext(), in)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrNotFound) {
			return toHTTPError(err)
		}
		observability.WithContextLogger(h.logger, c.UserContext()).Error("deadline confirmation failed",
			zap.String("transferId", in.TransferID),
			zap.Error(err),
		)
		return sendTwiML(c, fiber.StatusInternalServerError, errorPrompt)
	}

	observability.WithContextLogger(h.logger, c.UserContext()).Info("deadline confirmation received",
		zap.String("transferId", in.TransferID),
		zap.String("action", string(action)),
	)
	return sendTwiML(c, fiber.StatusOK, promptFor(action))
}

func promptFor(action domain.ConfirmationAction) string {
	switch action {
	case domain.ConfirmationPickedUp:
		return pickedUpPrompt
	case domain.ConfirmationAcknowledged:
		return acknowledgedPrompt
	default:
		return invalidPrompt
	}
}

func sendTwiML(c *fiber.Ctx, status int, text string) error {
	body, err := xml.Marshal(twimlResponse{
		Say: twimlSay{Voice: sayVoice, Language: sayLanguage, Text: text},
	})
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationXML)
	return c.Status(status).Send(append([]byte(xml.Header), body...))
}
