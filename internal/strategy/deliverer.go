package strategy

import (
	"context"
	"errors"
	"fmt"

	"github.com/goevery/seatcast/internal/broadcaster"
	"go.uber.org/zap"
)

// deliverer holds what every strategy needs to push events to connections.
type deliverer struct {
	logger    *zap.Logger
	registry  broadcaster.Registry
	transport broadcaster.Transport
}

func (d *deliverer) register(connection *broadcaster.Connection) error {
	return d.registry.Add(connection)
}

func (d *deliverer) unregister(connectionId string) {
	d.registry.Remove(connectionId)
}

func (d *deliverer) subscribe(connectionId string, topic string) error {
	return d.registry.Subscribe(connectionId, topic)
}

func (d *deliverer) unsubscribe(connectionId string, topic string) {
	d.registry.Unsubscribe(connectionId, topic)
}

// toRoom delivers to the connections joined to event.Room.
func (d *deliverer) toRoom(ctx context.Context, event broadcaster.Event) Report {
	return d.toConnections(ctx, d.registry.Subscribers(event.Room), event)
}

func (d *deliverer) toMatching(ctx context.Context, predicate func(*broadcaster.Connection) bool, event broadcaster.Event) Report {
	var connections []*broadcaster.Connection
	d.registry.ForEach(predicate, func(connection *broadcaster.Connection) {
		connections = append(connections, connection)
	})

	return d.toConnections(ctx, connections, event)
}

func (d *deliverer) toConnections(ctx context.Context, connections []*broadcaster.Connection, event broadcaster.Event) Report {
	var report Report
	var staleConnectionIds []string

	for _, connection := range connections {
		err := d.send(ctx, connection, event)
		if err == nil {
			report.Delivered++

			continue
		}

		report.Failed++

		d.logger.Warn("failed to deliver event to connection",
			zap.String("connectionId", connection.Id),
			zap.String("eventId", event.Id),
			zap.Error(err))

		if errors.Is(err, broadcaster.ErrSlowConsumer) || errors.Is(err, broadcaster.ErrConnectionClosed) {
			staleConnectionIds = append(staleConnectionIds, connection.Id)
		}
	}

	for _, connectionId := range staleConnectionIds {
		d.registry.Remove(connectionId)
	}

	return report
}

func (d *deliverer) send(ctx context.Context, connection *broadcaster.Connection, event broadcaster.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transport panic: %v", r)
		}
	}()

	return d.transport.Send(ctx, connection, event)
}
