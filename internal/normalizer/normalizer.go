// Package normalizer turns provider webhook payloads into provider independent
// events. Payloads are decoded into typed structs at the boundary.
package normalizer

import (
	"fmt"

	"github.com/kursadbilgin/escalation-engine/internal/domain"
)

// Normalize decodes a raw payload from provider into internal events.
// A payload that matches no known shape yields a *domain.ParseError. When only
// some items of a batch fail, the good events come back with a domain.ItemErrors.
func Normalize(provider domain.Provider, payload []byte) ([]domain.InternalEvent, error) {
	switch provider {
	case domain.ProviderTwilio:
		p, err := ParseTwilioPayload(payload)
		if err != nil {
			return nil, err
		}
		return NormalizeTwilio(p)
	case domain.ProviderWhatsApp:
		p, err := ParseCloudPayload(payload)
		if err != nil {
			return nil, err
		}
		return NormalizeCloud(p)
	default:
		return nil, &domain.ParseError{
			Provider: provider,
			Reason:   fmt.Sprintf("unsupported provider %q", provider),
		}
	}
}
