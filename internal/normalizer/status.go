package normalizer

import (
	"strings"

	"github.com/kursadbilgin/escalation-engine/internal/domain"
)

var statusAliases = map[string]domain.MessageStatus{
	"queued":      domain.MessageStatusQueued,
	"sending":     domain.MessageStatusQueued,
	"accepted":    domain.MessageStatusQueued,
	"sent":        domain.MessageStatusSent,
	"delivered":   domain.MessageStatusDelivered,
	"undelivered": domain.MessageStatusFailed,
	"failed":      domain.MessageStatusFailed,
	"read":        domain.MessageStatusRead,
	"receiving":   domain.MessageStatusReceived,
	"received":    domain.MessageStatusReceived,
}

// MapStatus translates a provider status word. Unknown values pass through unchanged.
func MapStatus(raw string) domain.MessageStatus {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if status, ok := statusAliases[normalized]; ok {
		return status
	}
	return domain.MessageStatus(normalized)
}
