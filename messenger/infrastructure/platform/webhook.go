package platform

import (
	"encoding/json"
	"fmt"

	"github.com/AzielCF/az-messenger/messenger/domain"
	pkgError "github.com/AzielCF/az-messenger/pkg/error"
)

const objectPage = "page"

// WebhookPayload is the callback batch posted by the platform.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID        string      `json:"id"`
	Time      int64       `json:"time"`
	Messaging []Messaging `json:"messaging"`
}

type Participant struct {
	ID string `json:"id"`
}

// Messaging is one callback. Only Message is decoded; deliveries, reads,
// postbacks and the rest are kept raw and ignored.
type Messaging struct {
	Sender    Participant     `json:"sender"`
	Recipient Participant     `json:"recipient"`
	Timestamp int64           `json:"timestamp"`
	Message   *Message        `json:"message,omitempty"`
	Delivery  json.RawMessage `json:"delivery,omitempty"`
	Read      json.RawMessage `json:"read,omitempty"`
	Postback  json.RawMessage `json:"postback,omitempty"`
}

type Message struct {
	MID        string      `json:"mid"`
	Text       string      `json:"text"`
	IsEcho     bool        `json:"is_echo"`
	QuickReply *QuickReply `json:"quick_reply,omitempty"`
}

type QuickReply struct {
	Payload string `json:"payload"`
}

// ParseEvents decodes a webhook body into the user messages it carries, in
// delivery order. A quick reply payload takes precedence over message text.
func ParseEvents(body []byte) ([]domain.InboundEvent, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, pkgError.ValidationError(fmt.Sprintf("invalid webhook payload: %v", err))
	}
	if payload.Object != objectPage {
		return nil, pkgError.ValidationError(fmt.Sprintf("unsupported webhook object %q", payload.Object))
	}

	var events []domain.InboundEvent
	for _, entry := range payload.Entry {
		for _, m := range entry.Messaging {
			if ev, ok := toEvent(m); ok {
				events = append(events, ev)
			}
		}
	}
	return events, nil
}

func toEvent(m Messaging) (domain.InboundEvent, bool) {
	if m.Message == nil || m.Message.IsEcho || m.Sender.ID == "" {
		return domain.InboundEvent{}, false
	}
	switch {
	case m.Message.QuickReply != nil && m.Message.QuickReply.Payload != "":
		return domain.InboundEvent{
			SenderID:   m.Sender.ID,
			QuickReply: &domain.QuickReplyMessage{Payload: m.Message.QuickReply.Payload},
		}, true
	case m.Message.Text != "":
		return domain.InboundEvent{
			SenderID: m.Sender.ID,
			Message:  &domain.TextMessage{Text: m.Message.Text},
		}, true
	}
	return domain.InboundEvent{}, false
}
