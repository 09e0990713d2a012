// Package wsconn adapts a gorilla/websocket connection to the hub adapter contract.
package wsconn

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Options struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
	// OutboundBuffer is how many frames may wait for the writer before
	// the connection reports itself not writable.
	OutboundBuffer int
}

func (o *Options) setDefaults() {
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 * 1024
	}
	if o.OutboundBuffer <= 0 {
		o.OutboundBuffer = 16
	}
}

// Conn wraps a websocket connection. A single writer goroutine owns all data
// frames; Close and ping control frames may be written concurrently.
type Conn struct {
	ws     *websocket.Conn
	logger *zap.Logger
	opts   Options

	out       chan []byte
	done      chan struct{}
	open      atomic.Bool
	closeOnce sync.Once

	mu         sync.Mutex
	onClose    func()
	onWritable func()
}

// New wraps ws and starts its writer. The caller must run ReadLoop to
// observe peer closes and pongs.
func New(ws *websocket.Conn, logger *zap.Logger, opts Options) *Conn {
	opts.setDefaults()
	c := &Conn{
		ws:     ws,
		logger: logger.Named("wsconn"),
		opts:   opts,
		out:    make(chan []byte, opts.OutboundBuffer),
		done:   make(chan struct{}),
	}
	c.open.Store(true)
	go c.writePump()
	return c
}

// Send queues payload for the writer. It is dropped when the connection is
// closed or, in a race with the writability check, when the buffer is full.
func (c *Conn) Send(payload []byte) {
	if !c.open.Load() {
		return
	}
	select {
	case c.out <- payload:
	case <-c.done:
	default:
		c.logger.Debug("outbound buffer full, frame discarded")
	}
}

func (c *Conn) IsOpen() bool { return c.open.Load() }

func (c *Conn) Writable() bool { return len(c.out) < cap(c.out) }

func (c *Conn) SetOnClose(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = fn
}

func (c *Conn) SetOnWritable(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onWritable = fn
}

// Close sends a normal close frame and tears the connection down.
func (c *Conn) Close() {
	c.shutdown(true)
}

// ReadLoop reads frames until the connection fails or closes, passing each
// data frame to handle. It returns after the close callback has fired.
func (c *Conn) ReadLoop(handle func(msg []byte)) {
	defer c.shutdown(false)

	c.ws.SetReadLimit(c.opts.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		mt, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				c.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		if mt == websocket.TextMessage || mt == websocket.BinaryMessage {
			handle(msg)
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.opts.PongWait * 9 / 10)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.out:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Debug("websocket write failed", zap.Error(err))
				c.shutdown(false)
				return
			}
			c.mu.Lock()
			fn := c.onWritable
			c.mu.Unlock()
			if fn != nil {
				fn()
			}
		case <-ticker.C:
			deadline := time.Now().Add(c.opts.WriteWait)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debug("websocket ping failed", zap.Error(err))
				c.shutdown(false)
				return
			}
		}
	}
}

// shutdown closes the socket once. The close callback runs after the Once has
// completed so that it may call Close again.
func (c *Conn) shutdown(sendClose bool) {
	first := false
	c.closeOnce.Do(func() {
		first = true
		c.open.Store(false)
		close(c.done)
		if sendClose {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.opts.WriteWait))
		}
		_ = c.ws.Close()
	})
	if !first {
		return
	}

	c.mu.Lock()
	fn := c.onClose
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}
