package normalizer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kursadbilgin/escalation-engine/internal/domain"
)

// CloudPayload is the JSON body of a WhatsApp Cloud API webhook.
type CloudPayload struct {
	Object string       `json:"object"`
	Entry  []CloudEntry `json:"entry"`
}

type CloudEntry struct {
	ID      string        `json:"id"`
	Changes []CloudChange `json:"changes"`
}

type CloudChange struct {
	Field string     `json:"field"`
	Value CloudValue `json:"value"`
}

type CloudValue struct {
	MessagingProduct string         `json:"messaging_product"`
	Metadata         CloudMetadata  `json:"metadata"`
	Contacts         []CloudContact `json:"contacts"`
	Messages         []CloudMessage `json:"messages"`
	Statuses         []CloudStatus  `json:"statuses"`
	Errors           []CloudError   `json:"errors"`
}

type CloudMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type CloudContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type CloudMessage struct {
	ID          string            `json:"id"`
	From        string            `json:"from"`
	Timestamp   string            `json:"timestamp"`
	Type        string            `json:"type"`
	Text        *CloudText        `json:"text,omitempty"`
	Image       *CloudMedia       `json:"image,omitempty"`
	Video       *CloudMedia       `json:"video,omitempty"`
	Document    *CloudMedia       `json:"document,omitempty"`
	Audio       *CloudMedia       `json:"audio,omitempty"`
	Sticker     *CloudMedia       `json:"sticker,omitempty"`
	Location    *CloudLocation    `json:"location,omitempty"`
	Interactive *CloudInteractive `json:"interactive,omitempty"`
	Button      *CloudButton      `json:"button,omitempty"`
	Reaction    *CloudReaction    `json:"reaction,omitempty"`
	Context     *CloudContext     `json:"context,omitempty"`
}

type CloudText struct {
	Body string `json:"body"`
}

type CloudMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256"`
	Caption  string `json:"caption"`
	Filename string `json:"filename"`
	Voice    bool   `json:"voice"`
}

type CloudLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name"`
	Address   string  `json:"address"`
}

type CloudInteractive struct {
	Type        string      `json:"type"`
	ButtonReply *CloudReply `json:"button_reply,omitempty"`
	ListReply   *CloudReply `json:"list_reply,omitempty"`
}

type CloudReply struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type CloudButton struct {
	Payload string `json:"payload"`
	Text    string `json:"text"`
}

type CloudReaction struct {
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

type CloudContext struct {
	From string `json:"from"`
	ID   string `json:"id"`
}

type CloudStatus struct {
	ID           string             `json:"id"`
	Status       string             `json:"status"`
	Timestamp    string             `json:"timestamp"`
	RecipientID  string             `json:"recipient_id"`
	Conversation *CloudConversation `json:"conversation,omitempty"`
	Pricing      *CloudPricing      `json:"pricing,omitempty"`
	Errors       []CloudError       `json:"errors,omitempty"`
}

type CloudConversation struct {
	ID     string `json:"id"`
	Origin *struct {
		Type string `json:"type"`
	} `json:"origin,omitempty"`
}

type CloudPricing struct {
	Billable     bool   `json:"billable"`
	PricingModel string `json:"pricing_model"`
	Category     string `json:"category"`
}

type CloudError struct {
	Code      int    `json:"code"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	ErrorData *struct {
		Details string `json:"details"`
	} `json:"error_data,omitempty"`
}

func ParseCloudPayload(body []byte) (CloudPayload, error) {
	var p CloudPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return CloudPayload{}, &domain.ParseError{Provider: domain.ProviderWhatsApp, Reason: "invalid json body", Cause: err}
	}
	if p.Entry == nil {
		return CloudPayload{}, &domain.ParseError{Provider: domain.ProviderWhatsApp, Reason: "payload has no entry list"}
	}
	return p, nil
}

// NormalizeCloud flattens every messages change of the payload into events.
// Changes for other fields are ignored. A message or status that cannot be
// parsed is skipped and reported in a domain.ItemErrors next to the events
// that could be.
func NormalizeCloud(p CloudPayload) ([]domain.InternalEvent, error) {
	var (
		events   []domain.InternalEvent
		itemErrs domain.ItemErrors
	)

	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			value := change.Value

			for _, msg := range value.Messages {
				incoming, err := cloudIncoming(msg, value)
				if err != nil {
					itemErrs = append(itemErrs, err)
					continue
				}
				events = append(events, domain.InternalEvent{
					Kind:     domain.EventIncomingMessage,
					Provider: domain.ProviderWhatsApp,
					Incoming: incoming,
				})
			}

			for _, status := range value.Statuses {
				update, err := cloudStatus(status)
				if err != nil {
					itemErrs = append(itemErrs, err)
					continue
				}
				events = append(events, domain.InternalEvent{
					Kind:     domain.EventStatusUpdate,
					Provider: domain.ProviderWhatsApp,
					Status:   update,
				})
			}

			for _, cloudErr := range value.Errors {
				events = append(events, domain.InternalEvent{
					Kind:     domain.EventProviderError,
					Provider: domain.ProviderWhatsApp,
					Failure:  cloudFailure(cloudErr),
				})
			}
		}
	}

	if len(itemErrs) > 0 {
		return events, itemErrs
	}
	return events, nil
}

func cloudIncoming(msg CloudMessage, value CloudValue) (*domain.IncomingMessage, *domain.ParseError) {
	if strings.TrimSpace(msg.ID) == "" || strings.TrimSpace(msg.From) == "" {
		return nil, &domain.ParseError{Provider: domain.ProviderWhatsApp, Reason: "message without id or from"}
	}

	ts, err := parseUnixSeconds(msg.Timestamp)
	if err != nil {
		return nil, &domain.ParseError{Provider: domain.ProviderWhatsApp, Reason: "invalid message timestamp", Cause: err}
	}

	incoming := &domain.IncomingMessage{
		ProviderMessageID: msg.ID,
		Channel:           domain.ChannelWhatsApp,
		From:              msg.From,
		To:                value.Metadata.DisplayPhoneNumber,
		Timestamp:         ts,
		Metadata:          map[string]any{"message_type": msg.Type},
	}
	if value.Metadata.PhoneNumberID != "" {
		incoming.Metadata["phone_number_id"] = value.Metadata.PhoneNumberID
	}
	for _, contact := range value.Contacts {
		if contact.WaID == msg.From && contact.Profile.Name != "" {
			incoming.Metadata["profile_name"] = contact.Profile.Name
		}
	}
	if msg.Context != nil && msg.Context.ID != "" {
		incoming.Metadata["context"] = map[string]any{"message_id": msg.Context.ID, "from": msg.Context.From}
	}

	switch msg.Type {
	case "text":
		if msg.Text != nil {
			incoming.Body = msg.Text.Body
		}
	case "image", "video", "document", "audio", "sticker":
		if media := cloudMediaOf(msg); media != nil {
			incoming.Media = []domain.Media{{
				Type:     msg.Type,
				MediaID:  media.ID,
				MimeType: media.MimeType,
				Caption:  media.Caption,
				Filename: media.Filename,
			}}
			incoming.Body = media.Caption
		}
	case "location":
		if loc := msg.Location; loc != nil {
			incoming.Body = formatLocation(loc)
			incoming.Metadata["location"] = map[string]any{
				"latitude":  loc.Latitude,
				"longitude": loc.Longitude,
				"name":      loc.Name,
				"address":   loc.Address,
			}
		}
	case "interactive":
		if in := msg.Interactive; in != nil {
			reply := in.ButtonReply
			if reply == nil {
				reply = in.ListReply
			}
			if reply != nil {
				incoming.Body = reply.Title
				incoming.Metadata["interactive"] = map[string]any{
					"type":     in.Type,
					"reply_id": reply.ID,
					"title":    reply.Title,
				}
			}
		}
	case "button":
		if msg.Button != nil {
			incoming.Body = msg.Button.Text
			incoming.Metadata["button_payload"] = msg.Button.Payload
		}
	case "reaction":
		if msg.Reaction != nil {
			incoming.Body = msg.Reaction.Emoji
			incoming.Metadata["reaction"] = map[string]any{
				"message_id": msg.Reaction.MessageID,
				"emoji":      msg.Reaction.Emoji,
			}
		}
	}

	return incoming, nil
}

func cloudMediaOf(msg CloudMessage) *CloudMedia {
	switch msg.Type {
	case "image":
		return msg.Image
	case "video":
		return msg.Video
	case "document":
		return msg.Document
	case "audio":
		return msg.Audio
	case "sticker":
		return msg.Sticker
	}
	return nil
}

func cloudStatus(status CloudStatus) (*domain.StatusUpdate, *domain.ParseError) {
	if strings.TrimSpace(status.ID) == "" || strings.TrimSpace(status.Status) == "" {
		return nil, &domain.ParseError{Provider: domain.ProviderWhatsApp, Reason: "status without id or status"}
	}

	ts, err := parseUnixSeconds(status.Timestamp)
	if err != nil {
		return nil, &domain.ParseError{Provider: domain.ProviderWhatsApp, Reason: "invalid status timestamp", Cause: err}
	}

	update := &domain.StatusUpdate{
		ProviderMessageID: status.ID,
		Channel:           domain.ChannelWhatsApp,
		Status:            MapStatus(status.Status),
		Recipient:         status.RecipientID,
		Timestamp:         ts,
		Metadata:          map[string]any{},
	}

	if status.Pricing != nil {
		update.Metadata["pricing"] = map[string]any{
			"billable":      status.Pricing.Billable,
			"pricing_model": status.Pricing.PricingModel,
			"category":      status.Pricing.Category,
		}
	}
	if status.Conversation != nil {
		conversation := map[string]any{"id": status.Conversation.ID}
		if status.Conversation.Origin != nil {
			conversation["origin_type"] = status.Conversation.Origin.Type
		}
		update.Metadata["conversation"] = conversation
	}
	if len(status.Errors) > 0 {
		first := status.Errors[0]
		update.ErrorCode = strconv.Itoa(first.Code)
		update.ErrorMessage = first.Title
		if first.Message != "" {
			update.ErrorMessage = first.Message
		}
	}

	return update, nil
}

func cloudFailure(e CloudError) *domain.ProviderFailure {
	failure := &domain.ProviderFailure{
		Code:    strconv.Itoa(e.Code),
		Title:   e.Title,
		Message: e.Message,
	}
	if e.ErrorData != nil {
		failure.Details = e.ErrorData.Details
	}
	return failure
}

// parseUnixSeconds accepts an empty timestamp as absent.
func parseUnixSeconds(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	ts := time.Unix(secs, 0).UTC()
	return &ts, nil
}

func formatLocation(loc *CloudLocation) string {
	coords := fmt.Sprintf("%.6f,%.6f", loc.Latitude, loc.Longitude)
	parts := make([]string, 0, 3)
	if loc.Name != "" {
		parts = append(parts, loc.Name)
	}
	if loc.Address != "" {
		parts = append(parts, loc.Address)
	}
	parts = append(parts, coords)
	return "Location: " + strings.Join(parts, ", ")
}
