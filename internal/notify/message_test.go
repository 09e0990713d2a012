package notify

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amoylab/notification-service/internal/common/cnst"
	"github.com/amoylab/notification-service/internal/decoder"
)

const (
	sessionA = "6f1c2a9e-3b4d-4e5f-8a7b-1c2d3e4f5a6b"
	userA    = "7a1c2a9e-3b4d-4e5f-8a7b-1c2d3e4f5a6b"
)

func TestNewSessionNotification(t *testing.T) {
	msg, err := NewSessionNotification(sessionA, "ping", json.RawMessage(`{"x": 1}`))
	require.NoError(t, err)
	assert.Equal(t, sessionA, msg.SessionID)
	assert.Empty(t, msg.UserID)
	assert.Equal(t, `{"event":"ping","payload":{"x":1}}`, msg.Payload)
	assert.Equal(t, "ping", msg.EventType)

	msg, err = NewSessionNotification(sessionA, "ping", nil)
	require.NoError(t, err)
	assert.Equal(t, `{"event":"ping"}`, msg.Payload)
}

func TestDirectSubmissionValidation(t *testing.T) {
	_, err := NewSessionNotification("not-a-uuid", "ping", nil)
	assert.ErrorIs(t, err, cnst.ErrInvalidSessionID)

	_, err = NewSessionNotification(sessionA, "", nil)
	assert.ErrorIs(t, err, cnst.ErrEventRequired)

	_, err = NewUserNotification("nope", "ping", nil)
	assert.ErrorIs(t, err, cnst.ErrInvalidUserID)

	_, err = NewUserNotification(userA, "ping", json.RawMessage(`{bad`))
	assert.Error(t, err)

	msg, err := NewUserNotification(strings.ToUpper(userA), "ping", json.RawMessage(`"hi"`))
	require.NoError(t, err)
	assert.Equal(t, strings.ToUpper(userA), msg.UserID)
	assert.Equal(t, `{"event":"ping","payload":"hi"}`, msg.Payload)
}

func TestFromEventStringPayload(t *testing.T) {
	ev := decoder.Event{"session_id": sessionA, "event": "session.created", "payload": `{"raw":true}`}
	msg, err := FromEvent(ev, "psds.session.created")
	require.NoError(t, err)
	assert.Equal(t, sessionA, msg.SessionID)
	assert.Equal(t, `{"raw":true}`, msg.Payload)
	assert.Equal(t, "session.created", msg.EventType)
	assert.JSONEq(t, `{"session_id":"`+sessionA+`","event":"session.created","payload":"{\"raw\":true}"}`, string(msg.Raw))
}

func TestFromEventStructuredPayload(t *testing.T) {
	ev := decoder.Event{"sessionId": sessionA, "userId": userA, "operator": "op-1"}
	msg, err := FromEvent(ev, "psds.operator.assigned")
	require.NoError(t, err)
	assert.Equal(t, "psds.operator.assigned", msg.EventType)
	assert.JSONEq(t, `{
		"event": "psds.operator.assigned",
		"session_id": "`+sessionA+`",
		"user_id": "`+userA+`",
		"sessionId": "`+sessionA+`",
		"userId": "`+userA+`",
		"operator": "op-1"
	}`, msg.Payload)
}

func TestFromEventWithoutTarget(t *testing.T) {
	msg, err := FromEvent(decoder.Event{"event": strings.Repeat("x", 80)}, "t")
	require.NoError(t, err)
	assert.False(t, msg.HasTarget())
	assert.Len(t, msg.EventType, cnst.MaxEventTypeLength)
}

func TestAuditPayload(t *testing.T) {
	assert.Equal(t, `{"a":1}`, string((&Message{Payload: `{"a":1}`}).AuditPayload()))
	assert.Equal(t, `"plain text"`, string((&Message{Payload: "plain text"}).AuditPayload()))
	assert.Equal(t, `{"db":true}`, string((&Message{Payload: "x", Raw: json.RawMessage(`{"db":true}`)}).AuditPayload()))
}

func TestMessageWireFormat(t *testing.T) {
	msg := &Message{SessionID: sessionA, Payload: "p", EventType: "e"}
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"session_id":"`+sessionA+`","payload":"p","event_type":"e"}`, string(b))

	var back Message
	require.NoError(t, json.Unmarshal([]byte(`{"user_id":"u","payload":"p","event_type":"e","payload_for_db":{"k":1}}`), &back))
	assert.Equal(t, "u", back.UserID)
	assert.JSONEq(t, `{"k":1}`, string(back.Raw))
}
