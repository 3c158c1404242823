package strategy

import (
	"context"

	"github.com/goevery/seatcast/internal/broadcaster"
	"go.uber.org/zap"
)

// PubSub only delivers a topic's events to connections that explicitly
// subscribed to it. Registration alone makes a connection addressable through
// its user room, nothing more.
type PubSub struct {
	deliverer
}

func NewPubSub(logger *zap.Logger, registry broadcaster.Registry, transport broadcaster.Transport) *PubSub {
	return &PubSub{
		deliverer{logger, registry, transport},
	}
}

func (s *PubSub) Kind() Kind {
	return KindPubSub
}

func (s *PubSub) RegisterClient(ctx context.Context, connection *broadcaster.Connection) error {
	return s.register(connection)
}

func (s *PubSub) UnregisterClient(ctx context.Context, connectionId string) {
	s.unregister(connectionId)
}

func (s *PubSub) Subscribe(ctx context.Context, connectionId string, topic string) error {
	err := s.subscribe(connectionId, topic)
	if err != nil {
		return err
	}

	s.logger.Debug("connection subscribed",
		zap.String("connectionId", connectionId),
		zap.String("topic", topic))

	return nil
}

func (s *PubSub) Unsubscribe(ctx context.Context, connectionId string, topic string) {
	s.unsubscribe(connectionId, topic)
}

func (s *PubSub) Distribute(ctx context.Context, event broadcaster.Event) Report {
	if event.Room != "" {
		return s.toRoom(ctx, event)
	}

	if event.Topic == "" {
		s.logger.Warn("event without topic dropped", zap.String("eventId", event.Id))

		return Report{}
	}

	return s.toConnections(ctx, s.registry.Subscribers(event.Topic), event)
}
