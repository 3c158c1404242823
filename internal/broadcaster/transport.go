package broadcaster

import "context"

// Transport pushes a single event to a single live connection.
type Transport interface {
	Send(ctx context.Context, connection *Connection, event Event) error
}

type TransportFunc func(ctx context.Context, connection *Connection, event Event) error

func (f TransportFunc) Send(ctx context.Context, connection *Connection, event Event) error {
	return f(ctx, connection, event)
}

// QueueTransport hands events to the connection's outbound queue, which the
// websocket writer drains.
type QueueTransport struct{}

func NewQueueTransport() *QueueTransport {
	return &QueueTransport{}
}

func (t *QueueTransport) Send(ctx context.Context, connection *Connection, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return connection.Deliver(event)
}
