package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/escalation-engine/internal/domain"
	"github.com/kursadbilgin/escalation-engine/internal/service"
)

type stubConfirmer struct {
	got       service.ConfirmationInput
	confirmFn func(ctx context.Context, in service.ConfirmationInput) (domain.ConfirmationAction, error)
}

func (s *stubConfirmer) Confirm(ctx context.Context, in service.ConfirmationInput) (domain.ConfirmationAction, error) {
	s.got = in
	if s.confirmFn != nil {
		return s.confirmFn(ctx, in)
	}
	return domain.ParseConfirmationDigits(in.Digits), nil
}

func newConfirmationTestApp(t *testing.T, confirmer Confirmer) *fiber.App {
	t.Helper()

	h, err := NewConfirmationHandler(confirmer, nil)
	if err != nil {
		t.Fatalf("NewConfirmationHandler() error = %v", err)
	}
	app := newTestApp()
	RegisterConfirmationRoutes(app, h, nil)
	return app
}

func postConfirmation(t *testing.T, app *fiber.App, form string) (*http.Response, []byte) {
	t.Helper()
	return performRequest(t, app, http.MethodPost, service.ConfirmationCallbackPath, form,
		fiber.HeaderContentType, fiber.MIMEApplicationForm)
}

func TestConfirmationHandlerRespondsWithTwiML(t *testing.T) {
	t.Parallel()

	tests := []struct {
		digits   string
		wantText string
	}{
		{digits: "1", wantText: pickedUpPrompt},
		{digits: "2", wantText: acknowledgedPrompt},
		{digits: "7", wantText: invalidPrompt},
	}

	for _, tt := range tests {
		tt := tt
		t.Run("digits "+tt.digits, func(t *testing.T) {
			t.Parallel()

			confirmer := &stubConfirmer{}
			app := newConfirmationTestApp(t, confirmer)

			resp, body := postConfirmation(t, app, fmt.Sprintf("transfer_id=t-1&Digits=%s&CallSid=CA1&ExecutionSid=FN1", tt.digits))
			if resp.StatusCode != fiber.StatusOK {
				t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
			}
			if !strings.Contains(string(body), "<Response><Say") || !strings.Contains(string(body), tt.wantText) {
				t.Fatalf("body = %s, want TwiML with %q", string(body), tt.wantText)
			}
			if confirmer.got.TransferID != "t-1" || confirmer.got.CallSID != "CA1" || confirmer.got.ExecutionSID != "FN1" {
				t.Fatalf("input = %+v", confirmer.got)
			}
		})
	}
}

func TestConfirmationHandlerErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "missing transfer id", err: fmt.Errorf("%w: transfer_id is required", domain.ErrValidation), wantStatus: fiber.StatusBadRequest},
		{name: "unknown transfer", err: fmt.Errorf("transfer missing: %w", domain.ErrNotFound), wantStatus: fiber.StatusNotFound},
		{name: "store failure", err: errors.New("db down"), wantStatus: fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			confirmer := &stubConfirmer{confirmFn: func(ctx context.Context, in service.ConfirmationInput) (domain.ConfirmationAction, error) {
				return domain.ConfirmationNoResponse, tt.err
			}}
			app := newConfirmationTestApp(t, confirmer)

			resp, _ := postConfirmation(t, app, "Digits=1")
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}
