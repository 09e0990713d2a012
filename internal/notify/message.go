// Package notify holds the canonical notification shape and the delivery
// router every notification passes through.
package notify

import (
	"encoding/json"
	"fmt"

	"github.com/amoylab/notification-service/internal/common/cnst"
	"github.com/amoylab/notification-service/internal/decoder"
	"github.com/amoylab/notification-service/pkg/utils"
)

// Message is the unit routed to clients. Its JSON form is the cross-instance
// bus wire format.
type Message struct {
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	// Payload is sent to clients byte for byte.
	Payload   string `json:"payload"`
	EventType string `json:"event_type"`
	// Raw is the structured form kept for audit storage.
	Raw json.RawMessage `json:"payload_for_db,omitempty"`
}

// HasTarget reports whether the message addresses a session or a user.
func (m *Message) HasTarget() bool {
	return m.SessionID != "" || m.UserID != ""
}

// AuditPayload returns the structured form, the payload when it is JSON, or
// the payload as a JSON string.
func (m *Message) AuditPayload() json.RawMessage {
	if len(m.Raw) > 0 {
		return m.Raw
	}
	if json.Valid([]byte(m.Payload)) {
		return json.RawMessage(m.Payload)
	}
	b, _ := json.Marshal(m.Payload)
	return b
}

type envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewSessionNotification builds the message for a direct submission to every
// subscriber of sessionID. Clients receive {"event":...,"payload":...}.
func NewSessionNotification(sessionID, event string, payload json.RawMessage) (*Message, error) {
	if !utils.IsUUID(sessionID) {
		return nil, cnst.ErrInvalidSessionID
	}
	return newDirect(event, payload, func(m *Message) { m.SessionID = sessionID })
}

// NewUserNotification builds the message for a direct submission to one user.
func NewUserNotification(userID, event string, payload json.RawMessage) (*Message, error) {
	if !utils.IsUUID(userID) {
		return nil, cnst.ErrInvalidUserID
	}
	return newDirect(event, payload, func(m *Message) { m.UserID = userID })
}

func newDirect(event string, payload json.RawMessage, target func(*Message)) (*Message, error) {
	if event == "" {
		return nil, cnst.ErrEventRequired
	}
	if len(payload) > 0 && !json.Valid(payload) {
		return nil, fmt.Errorf("invalid payload: not JSON")
	}
	body, err := json.Marshal(envelope{Event: event, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("marshal notification: %w", err)
	}
	m := &Message{
		Payload:   string(body),
		EventType: utils.Truncate(event, cnst.MaxEventTypeLength),
	}
	target(m)
	return m, nil
}

// FromEvent shapes a decoded queue record read from topic. A string payload is
// forwarded verbatim; otherwise clients receive the event fields merged over
// {event, session_id, user_id}.
func FromEvent(ev decoder.Event, topic string) (*Message, error) {
	eventType := ev.EventType(topic)
	m := &Message{
		SessionID: ev.SessionID(),
		UserID:    ev.UserID(),
		EventType: eventType,
	}

	raw, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	m.Raw = raw

	if s, ok := ev.PayloadString(); ok {
		m.Payload = s
		return m, nil
	}

	merged := make(map[string]any, len(ev)+3)
	merged["event"] = eventType
	if m.SessionID != "" {
		merged["session_id"] = m.SessionID
	}
	if m.UserID != "" {
		merged["user_id"] = m.UserID
	}
	for k, v := range ev {
		merged[k] = v
	}
	body, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	m.Payload = string(body)
	return m, nil
}
