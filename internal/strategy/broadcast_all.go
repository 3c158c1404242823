package strategy

import (
	"context"

	"github.com/goevery/seatcast/internal/broadcaster"
	"go.uber.org/zap"
)

// BroadcastAll delivers every event to every registered connection.
type BroadcastAll struct {
	deliverer
}

func NewBroadcastAll(logger *zap.Logger, registry broadcaster.Registry, transport broadcaster.Transport) *BroadcastAll {
	return &BroadcastAll{
		deliverer{logger, registry, transport},
	}
}

func (s *BroadcastAll) Kind() Kind {
	return KindBroadcastAll
}

func (s *BroadcastAll) RegisterClient(ctx context.Context, connection *broadcaster.Connection) error {
	return s.register(connection)
}

func (s *BroadcastAll) UnregisterClient(ctx context.Context, connectionId string) {
	s.unregister(connectionId)
}

// Subscribe is recorded but does not gate delivery.
func (s *BroadcastAll) Subscribe(ctx context.Context, connectionId string, topic string) error {
	return s.subscribe(connectionId, topic)
}

func (s *BroadcastAll) Unsubscribe(ctx context.Context, connectionId string, topic string) {
	s.unsubscribe(connectionId, topic)
}

func (s *BroadcastAll) Distribute(ctx context.Context, event broadcaster.Event) Report {
	if event.Room != "" {
		return s.toRoom(ctx, event)
	}

	return s.toMatching(ctx, nil, event)
}
