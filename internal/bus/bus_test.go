package bus

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/amoylab/notification-service/internal/common/cnst"
	"github.com/amoylab/notification-service/internal/common/config"
	"github.com/amoylab/notification-service/internal/hub"
	"github.com/amoylab/notification-service/internal/notify"
)

const sessionID = "6f1c2a9e-3b4d-4e5f-8a7b-1c2d3e4f5a6b"

func newClient(t *testing.T, mr *miniredis.Miniredis) redis.UniversalClient {
	t.Helper()
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestPublishSubscribe(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	b, err := NewRedisBus(context.Background(), zap.NewNop(), config.BusConfig{Addr: mr.Addr(), Channel: cnst.BusChannel})
	require.NoError(t, err)
	defer b.Close()

	got := make(chan *notify.Message, 1)
	require.NoError(t, b.Subscribe(context.Background(), func(_ context.Context, msg *notify.Message) {
		got <- msg
	}))

	sent := &notify.Message{SessionID: sessionID, Payload: `{"event":"ping"}`, EventType: "ping", Raw: json.RawMessage(`{"a":1}`)}
	require.NoError(t, b.Publish(context.Background(), sent))

	select {
	case msg := <-got:
		assert.Equal(t, sent.SessionID, msg.SessionID)
		assert.Equal(t, sent.Payload, msg.Payload)
		assert.Equal(t, sent.EventType, msg.EventType)
		assert.JSONEq(t, `{"a":1}`, string(msg.Raw))
	case <-time.After(2 * time.Second):
		t.Fatal("message not received from bus")
	}
}

func TestWireFormatOnChannel(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := newClient(t, mr)
	b := NewRedisBusWithClient(zap.NewNop(), client, "")
	assert.Equal(t, "psds:notification", b.Channel())

	raw := newClient(t, mr).Subscribe(context.Background(), "psds:notification")
	defer raw.Close()
	_, err = raw.Receive(context.Background())
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), &notify.Message{UserID: "u", Payload: "p", EventType: "e"}))
	m, err := raw.ReceiveMessage(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"user_id":"u","payload":"p","event_type":"e"}`, m.Payload)
}

func TestMalformedMessagesAreSkipped(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	b := NewRedisBusWithClient(zap.NewNop(), newClient(t, mr), cnst.BusChannel)
	defer b.Close()
	got := make(chan string, 2)
	require.NoError(t, b.Subscribe(context.Background(), func(_ context.Context, msg *notify.Message) {
		got <- msg.Payload
	}))

	mr.Publish(cnst.BusChannel, "not json")
	mr.Publish(cnst.BusChannel, `{"payload":"ok","event_type":"e"}`)

	select {
	case p := <-got:
		assert.Equal(t, "ok", p)
	case <-time.After(2 * time.Second):
		t.Fatal("valid message not delivered")
	}
}

func TestSubscribeAfterClose(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	b := NewRedisBusWithClient(zap.NewNop(), newClient(t, mr), cnst.BusChannel)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	assert.ErrorIs(t, b.Subscribe(context.Background(), func(context.Context, *notify.Message) {}), cnst.ErrBusClosed)
}

type recordingAdapter struct {
	mu   sync.Mutex
	sent []string
}

func (a *recordingAdapter) Send(p []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, string(p))
}
func (a *recordingAdapter) Close() {}
func (a *recordingAdapter) IsOpen() bool { return true }
func (a *recordingAdapter) SetOnClose(func()) {}
func (a *recordingAdapter) Sent() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.sent...)
}

type countingAuditor struct {
	mu sync.Mutex
	n  int
}

func (c *countingAuditor) InsertNotificationEvent(context.Context, *string, *string, string, json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return nil
}

func (c *countingAuditor) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

type instance struct {
	hub    *hub.Hub
	router *notify.Router
	audit  *countingAuditor
}

func newInstance(t *testing.T, mr *miniredis.Miniredis) *instance {
	t.Helper()
	b := NewRedisBusWithClient(zap.NewNop(), newClient(t, mr), cnst.BusChannel)
	t.Cleanup(func() { _ = b.Close() })

	h := hub.New(zap.NewNop(), hub.Options{})
	audit := &countingAuditor{}
	r := notify.NewRouter(zap.NewNop(), h, notify.RouterOptions{Audit: audit, Bus: b})
	require.NoError(t, b.Subscribe(context.Background(), r.DeliverLocal))
	return &instance{hub: h, router: r, audit: audit}
}

func TestTwoInstancesShareBus(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	a := newInstance(t, mr)
	b := newInstance(t, mr)

	onB := &recordingAdapter{}
	b.hub.Register("user-b", onB)
	b.hub.SubscribeSession(sessionID, "user-b")

	msg, err := notify.NewSessionNotification(sessionID, "ping", json.RawMessage(`{"x":1}`))
	require.NoError(t, err)
	a.router.Deliver(context.Background(), msg)

	require.Eventually(t, func() bool {
		return a.audit.Count() == 1 && b.audit.Count() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{`{"event":"ping","payload":{"x":1}}`}, onB.Sent())
	assert.Equal(t, 0, a.hub.ConnectionCount())
}
