package broadcaster

import (
	"context"
	"errors"
	"sync"

	"github.com/goevery/seatcast/internal/auth"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSlowConsumer     = errors.New("connection send queue is full")
)

type Connection struct {
	Id string

	send chan Event

	mu             sync.RWMutex
	closed         bool
	authentication *auth.Authentication
}

func NewConnection(bufferSize int) *Connection {
	return &Connection{
		Id:   gonanoid.Must(),
		send: make(chan Event, max(bufferSize, 1)),
	}
}

func (c *Connection) SetAuthentication(authentication auth.Authentication) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.authentication != nil {
		return errors.New("connection is already authenticated")
	}

	c.authentication = &authentication

	return nil
}

func (c *Connection) GetAuthentication() *auth.Authentication {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.authentication
}

func (c *Connection) GetUserId() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.authentication == nil {
		return ""
	}

	return c.authentication.Subject
}

func (c *Connection) Role() auth.Role {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.authentication == nil {
		return ""
	}

	return c.authentication.Role
}

// Room returns the per-user addressing room, empty for anonymous connections.
func (c *Connection) Room() string {
	userId := c.GetUserId()
	if userId == "" {
		return ""
	}

	return UserRoom(userId)
}

// Deliver enqueues an event without blocking.
func (c *Connection) Deliver(event Event) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrConnectionClosed
	}

	select {
	case c.send <- event:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// Outbound is drained by the transport writer until it is closed.
func (c *Connection) Outbound() <-chan Event {
	return c.send
}

// Close is idempotent.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	close(c.send)
}

func (c *Connection) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.closed
}

type contextKey string

const connectionKey contextKey = "connection"

func WithConnection(ctx context.Context, conn *Connection) context.Context {
	return context.WithValue(ctx, connectionKey, conn)
}

func ConnectionFromContext(ctx context.Context) (*Connection, bool) {
	conn, ok := ctx.Value(connectionKey).(*Connection)

	return conn, ok
}
