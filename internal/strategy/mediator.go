package strategy

import (
	"context"
	"sync"

	"github.com/goevery/seatcast/internal/broadcaster"
	"go.uber.org/zap"
)

// sourceDispatch names events that enter through Distribute.
const sourceDispatch = "dispatch"

// Mediator is the single owner of membership. Event sources never track
// connections themselves; they emit through a Colleague handle.
type Mediator struct {
	deliverer

	mu         sync.Mutex
	colleagues map[string]*Colleague
}

func NewMediator(logger *zap.Logger, registry broadcaster.Registry, transport broadcaster.Transport) *Mediator {
	return &Mediator{
		deliverer:  deliverer{logger, registry, transport},
		colleagues: make(map[string]*Colleague),
	}
}

func (m *Mediator) Kind() Kind {
	return KindMediator
}

func (m *Mediator) RegisterClient(ctx context.Context, connection *broadcaster.Connection) error {
	return m.register(connection)
}

func (m *Mediator) UnregisterClient(ctx context.Context, connectionId string) {
	m.unregister(connectionId)
}

func (m *Mediator) Subscribe(ctx context.Context, connectionId string, topic string) error {
	return m.subscribe(connectionId, topic)
}

func (m *Mediator) Unsubscribe(ctx context.Context, connectionId string, topic string) {
	m.unsubscribe(connectionId, topic)
}

func (m *Mediator) Distribute(ctx context.Context, event broadcaster.Event) Report {
	return m.relay(ctx, sourceDispatch, event)
}

// Colleague returns the handle for a named event source.
func (m *Mediator) Colleague(name string) *Colleague {
	m.mu.Lock()
	defer m.mu.Unlock()

	colleague, ok := m.colleagues[name]
	if !ok {
		colleague = &Colleague{name: name, mediator: m}
		m.colleagues[name] = colleague
	}

	return colleague
}

func (m *Mediator) relay(ctx context.Context, source string, event broadcaster.Event) Report {
	var report Report
	if event.Room != "" {
		report = m.toRoom(ctx, event)
	} else {
		report = m.toMatching(ctx, nil, event)
	}

	m.logger.Debug("event relayed",
		zap.String("source", source),
		zap.String("eventId", event.Id),
		zap.Int("delivered", report.Delivered))

	return report
}

type Colleague struct {
	name     string
	mediator *Mediator
}

func (c *Colleague) Name() string {
	return c.name
}

func (c *Colleague) Emit(ctx context.Context, event broadcaster.Event) Report {
	return c.mediator.relay(ctx, c.name, event)
}
