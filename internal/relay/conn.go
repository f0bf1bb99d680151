package relay

import (
	"sync"

	"github.com/drawbridge-app/drawbridge/internal/wire"
)

// Conn is the server-side binding of one websocket to one
// authenticated user. Outbound envelopes go through a bounded send
// queue drained by the connection's writer goroutine, so a slow peer
// backs up its own queue and nobody else's.
//
// The send channel is never closed: broadcasters race with shutdown,
// and closing would turn a late delivery into a panic. Writers stop by
// observing done instead.
type Conn struct {
	userID string
	send   chan wire.Envelope

	// rooms is owned by the Registry and guarded by its mutex.
	rooms map[string]struct{}

	done      chan struct{}
	closeOnce sync.Once
}

// NewConn creates a connection for the given user with a bounded send
// queue.
func NewConn(userID string, sendQueueSize int) *Conn {
	if sendQueueSize <= 0 {
		sendQueueSize = 64
	}
	return &Conn{
		userID: userID,
		send:   make(chan wire.Envelope, sendQueueSize),
		rooms:  make(map[string]struct{}),
		done:   make(chan struct{}),
	}
}

// UserID returns the authenticated user this socket belongs to.
func (c *Conn) UserID() string { return c.userID }

// Outbox returns the channel the writer goroutine drains.
func (c *Conn) Outbox() <-chan wire.Envelope { return c.send }

// Done is closed when the connection is shutting down.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Close signals the connection's goroutines to stop. Idempotent.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// trySend queues an envelope without blocking. It reports false when
// the connection is closed or its queue is full; the caller treats
// that as a failed delivery to this one target.
func (c *Conn) trySend(env wire.Envelope) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}
