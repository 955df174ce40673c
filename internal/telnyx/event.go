package telnyx

import (
	"encoding/json"
	"strings"
	"time"
)

// EventTypeMessageReceived is the only event type this pipeline acts on.
const EventTypeMessageReceived = "message.received"

// Event is the canonical, shape-independent view of a webhook payload.
type Event struct {
	EventID    string
	EventType  string
	MessageID  string
	From       string
	To         string
	Text       string
	Direction  string
	OccurredAt time.Time
}

// ActionableInbound reports whether the event should enter the resolution
// cascade. Delivery receipts, outbound echoes, and events missing routing
// fields are acknowledged and skipped.
func (e *Event) ActionableInbound() bool {
	if e == nil {
		return false
	}
	return e.EventType == EventTypeMessageReceived &&
		e.Direction == "inbound" &&
		e.From != "" && e.To != "" && e.Text != ""
}

type messagePayload struct {
	ID        string `json:"id"`
	Direction string `json:"direction"`
	Text      string `json:"text"`
	From      struct {
		PhoneNumber string `json:"phone_number"`
	} `json:"from"`
	To []struct {
		PhoneNumber string `json:"phone_number"`
	} `json:"to"`
	FromNumberRaw string `json:"from_number"`
	ToNumberRaw   string `json:"to_number"`
	MessageID     string `json:"message_id"`
}

func (p messagePayload) fromNumber() string {
	if v := strings.TrimSpace(p.From.PhoneNumber); v != "" {
		return v
	}
	return strings.TrimSpace(p.FromNumberRaw)
}

func (p messagePayload) toNumber() string {
	if len(p.To) > 0 {
		if v := strings.TrimSpace(p.To[0].PhoneNumber); v != "" {
			return v
		}
	}
	return strings.TrimSpace(p.ToNumberRaw)
}

func (p messagePayload) messageID() string {
	if v := strings.TrimSpace(p.ID); v != "" {
		return v
	}
	return strings.TrimSpace(p.MessageID)
}

type envelope struct {
	Data *struct {
		ID         string          `json:"id"`
		EventType  string          `json:"event_type"`
		OccurredAt time.Time       `json:"occurred_at"`
		Payload    json.RawMessage `json:"payload"`
	} `json:"data"`
	ID         string          `json:"id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Normalize extracts a canonical event from any of the envelope shapes Telnyx
// has shipped over time: the data-wrapped form, the flat form with a
// top-level payload, and the bare form carrying message fields at the top
// level. A nil event with nil error means the shape (or event type) is not
// one this pipeline understands; the caller acknowledges and moves on. A
// non-nil error means the body is not valid JSON at all.
func Normalize(body []byte) (*Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}

	var (
		evt     Event
		payload json.RawMessage
	)
	switch {
	case env.Data != nil && strings.TrimSpace(env.Data.EventType) != "":
		evt.EventID = env.Data.ID
		evt.EventType = env.Data.EventType
		evt.OccurredAt = env.Data.OccurredAt
		payload = env.Data.Payload
	case strings.TrimSpace(env.EventType) != "" && len(env.Payload) > 0:
		evt.EventID = env.ID
		evt.EventType = env.EventType
		evt.OccurredAt = env.OccurredAt
		payload = env.Payload
	case strings.TrimSpace(env.EventType) != "":
		evt.EventID = env.ID
		evt.EventType = env.EventType
		evt.OccurredAt = env.OccurredAt
		payload = body
	default:
		return nil, nil
	}
	evt.EventType = strings.TrimSpace(evt.EventType)

	if len(payload) > 0 {
		var msg messagePayload
		if err := json.Unmarshal(payload, &msg); err == nil {
			evt.MessageID = msg.messageID()
			evt.From = msg.fromNumber()
			evt.To = msg.toNumber()
			evt.Text = msg.Text
			evt.Direction = strings.TrimSpace(msg.Direction)
		}
	}
	if evt.EventID == "" {
		evt.EventID = evt.MessageID
	}
	return &evt, nil
}
