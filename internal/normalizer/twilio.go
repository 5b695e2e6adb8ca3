package normalizer

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/kursadbilgin/escalation-engine/internal/domain"
)

const whatsappMarker = "whatsapp:"

// TwilioPayload is the form-encoded body of a Twilio messaging webhook.
type TwilioPayload struct {
	MessageSid    string
	AccountSid    string
	From          string
	To            string
	Body          string
	NumMedia      int
	MessageStatus string
	ErrorCode     string
	ErrorMessage  string
	MediaURLs     []string
	MediaTypes    []string
}

// ParseTwilioPayload decodes a form body. MediaUrl{i} is read from 0 until the
// first missing index.
func ParseTwilioPayload(body []byte) (TwilioPayload, error) {
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return TwilioPayload{}, &domain.ParseError{Provider: domain.ProviderTwilio, Reason: "invalid form body", Cause: err}
	}

	p := TwilioPayload{
		MessageSid:    strings.TrimSpace(form.Get("MessageSid")),
		AccountSid:    strings.TrimSpace(form.Get("AccountSid")),
		From:          strings.TrimSpace(form.Get("From")),
		To:            strings.TrimSpace(form.Get("To")),
		Body:          form.Get("Body"),
		MessageStatus: strings.TrimSpace(form.Get("MessageStatus")),
		ErrorCode:     strings.TrimSpace(form.Get("ErrorCode")),
		ErrorMessage:  strings.TrimSpace(form.Get("ErrorMessage")),
	}
	if p.MessageSid == "" {
		p.MessageSid = strings.TrimSpace(form.Get("SmsSid"))
	}
	if p.MessageStatus == "" {
		p.MessageStatus = strings.TrimSpace(form.Get("SmsStatus"))
	}
	if raw := strings.TrimSpace(form.Get("NumMedia")); raw != "" {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil || n < 0 {
			return TwilioPayload{}, &domain.ParseError{Provider: domain.ProviderTwilio, Reason: "invalid NumMedia", Cause: convErr}
		}
		p.NumMedia = n
	}

	for i := 0; ; i++ {
		idx := strconv.Itoa(i)
		if _, ok := form["MediaUrl"+idx]; !ok {
			break
		}
		p.MediaURLs = append(p.MediaURLs, form.Get("MediaUrl"+idx))
		p.MediaTypes = append(p.MediaTypes, form.Get("MediaContentType"+idx))
	}

	return p, nil
}

// Channel is whatsapp when either address carries the whatsapp: marker.
func (p TwilioPayload) Channel() domain.Channel {
	if hasWhatsAppMarker(p.From) || hasWhatsAppMarker(p.To) {
		return domain.ChannelWhatsApp
	}
	return domain.ChannelSMS
}

// isStatusCallback is true for delivery callbacks. Inbound messages carry the
// "received" status or none at all.
func (p TwilioPayload) isStatusCallback() bool {
	if p.MessageStatus == "" {
		return false
	}
	return MapStatus(p.MessageStatus) != domain.MessageStatusReceived
}

// NormalizeTwilio maps one form payload to exactly one event.
func NormalizeTwilio(p TwilioPayload) ([]domain.InternalEvent, error) {
	if p.MessageSid == "" {
		return nil, &domain.ParseError{Provider: domain.ProviderTwilio, Reason: "missing MessageSid"}
	}

	channel := p.Channel()

	if p.isStatusCallback() {
		update := &domain.StatusUpdate{
			ProviderMessageID: p.MessageSid,
			Channel:           channel,
			Status:            MapStatus(p.MessageStatus),
			Recipient:         stripAddress(p.To),
			ErrorCode:         p.ErrorCode,
			ErrorMessage:      p.ErrorMessage,
		}
		return []domain.InternalEvent{{
			Kind:     domain.EventStatusUpdate,
			Provider: domain.ProviderTwilio,
			Status:   update,
		}}, nil
	}

	if p.From == "" {
		return nil, &domain.ParseError{Provider: domain.ProviderTwilio, Reason: "message without From"}
	}
	if p.Body == "" && len(p.MediaURLs) == 0 {
		return nil, &domain.ParseError{Provider: domain.ProviderTwilio, Reason: "message without Body or media"}
	}

	media := make([]domain.Media, 0, len(p.MediaURLs))
	for i, mediaURL := range p.MediaURLs {
		media = append(media, domain.Media{
			Type:     mediaKindFromMIME(p.MediaTypes[i]),
			MimeType: p.MediaTypes[i],
			URL:      mediaURL,
		})
	}

	metadata := map[string]any{}
	if p.AccountSid != "" {
		metadata["account_sid"] = p.AccountSid
	}
	if p.NumMedia > 0 {
		metadata["num_media"] = p.NumMedia
	}

	return []domain.InternalEvent{{
		Kind:     domain.EventIncomingMessage,
		Provider: domain.ProviderTwilio,
		Incoming: &domain.IncomingMessage{
			ProviderMessageID: p.MessageSid,
			Channel:           channel,
			From:              stripAddress(p.From),
			To:                stripAddress(p.To),
			Body:              p.Body,
			Media:             media,
			Metadata:          metadata,
		},
	}}, nil
}

func hasWhatsAppMarker(address string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(address)), whatsappMarker)
}

// stripAddress removes the channel marker from a provider address.
func stripAddress(address string) string {
	trimmed := strings.TrimSpace(address)
	if hasWhatsAppMarker(trimmed) {
		return trimmed[len(whatsappMarker):]
	}
	return trimmed
}

func mediaKindFromMIME(mimeType string) string {
	major, _, _ := strings.Cut(strings.ToLower(mimeType), "/")
	switch major {
	case "image", "video", "audio":
		return major
	case "":
		return "unknown"
	default:
		return "document"
	}
}
