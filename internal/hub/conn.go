package hub

import "sync"

// EnqueueResult reports what happened to a payload handed to a connection.
type EnqueueResult int

const (
	Queued EnqueueResult = iota
	Dropped
	Closed
)

func (r EnqueueResult) String() string {
	switch r {
	case Queued:
		return "queued"
	case Dropped:
		return "dropped"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn is one registered client connection with its bounded FIFO queue.
// It is created and owned by the Hub.
type Conn struct {
	userID   string
	adapter  Adapter
	flow     FlowControl
	maxQueue int

	mu       sync.Mutex
	queue    [][]byte
	closed   bool
	flushing bool
	rerun    bool
}

func newConn(userID string, adapter Adapter, maxQueue int) *Conn {
	c := &Conn{
		userID:   userID,
		adapter:  adapter,
		maxQueue: maxQueue,
	}
	if fc, ok := adapter.(FlowControl); ok {
		c.flow = fc
	}
	return c
}

func (c *Conn) UserID() string { return c.userID }

// IsOpen reports whether the connection can still accept payloads.
func (c *Conn) IsOpen() bool {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	return !closed && c.adapter.IsOpen()
}

// Len returns the number of payloads waiting to be handed to the adapter.
func (c *Conn) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Enqueue appends payload to the queue and flushes. A full queue drops the
// payload; a closed connection rejects it.
func (c *Conn) Enqueue(payload []byte) EnqueueResult {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Closed
	}
	if len(c.queue) >= c.maxQueue {
		c.mu.Unlock()
		return Dropped
	}
	c.queue = append(c.queue, payload)
	c.mu.Unlock()

	c.Flush()
	return Queued
}

// Flush hands queued payloads to the adapter in FIFO order while it is open
// and writable. It is safe to call at any time and from any goroutine; a call
// that arrives while another flush is running makes that flush loop again.
func (c *Conn) Flush() {
	c.mu.Lock()
	if c.flushing {
		c.rerun = true
		c.mu.Unlock()
		return
	}
	c.flushing = true
	for {
		c.rerun = false
		for len(c.queue) > 0 && c.readyLocked() {
			msg := c.queue[0]
			c.queue[0] = nil
			c.queue = c.queue[1:]
			c.mu.Unlock()
			c.adapter.Send(msg)
			c.mu.Lock()
		}
		if !c.rerun {
			break
		}
	}
	c.flushing = false
	if len(c.queue) == 0 {
		c.queue = nil
	}
	c.mu.Unlock()
}

func (c *Conn) readyLocked() bool {
	if c.closed || !c.adapter.IsOpen() {
		return false
	}
	return c.flow == nil || c.flow.Writable()
}

// Close marks the connection unreachable, discards the queue and closes the
// adapter. Repeated calls are no-ops.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.queue = nil
	c.mu.Unlock()

	c.adapter.Close()
}
