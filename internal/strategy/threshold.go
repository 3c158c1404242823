package strategy

import (
	"context"

	"github.com/goevery/seatcast/internal/auth"
	"github.com/goevery/seatcast/internal/broadcaster"
	"github.com/goevery/seatcast/internal/capacity"
	"go.uber.org/zap"
)

// ThresholdRoleFilter broadcasts generic events like BroadcastAll and filters
// capacity transitions by role.
type ThresholdRoleFilter struct {
	deliverer
}

func NewThresholdRoleFilter(logger *zap.Logger, registry broadcaster.Registry, transport broadcaster.Transport) *ThresholdRoleFilter {
	return &ThresholdRoleFilter{
		deliverer{logger, registry, transport},
	}
}

func (s *ThresholdRoleFilter) Kind() Kind {
	return KindThresholdRoleFilter
}

func (s *ThresholdRoleFilter) RegisterClient(ctx context.Context, connection *broadcaster.Connection) error {
	return s.register(connection)
}

func (s *ThresholdRoleFilter) UnregisterClient(ctx context.Context, connectionId string) {
	s.unregister(connectionId)
}

func (s *ThresholdRoleFilter) Subscribe(ctx context.Context, connectionId string, topic string) error {
	return s.subscribe(connectionId, topic)
}

func (s *ThresholdRoleFilter) Unsubscribe(ctx context.Context, connectionId string, topic string) {
	s.unsubscribe(connectionId, topic)
}

func (s *ThresholdRoleFilter) Distribute(ctx context.Context, event broadcaster.Event) Report {
	if event.Room != "" {
		return s.toRoom(ctx, event)
	}

	return s.toMatching(ctx, nil, event)
}

func (s *ThresholdRoleFilter) NotifyCapacityChange(ctx context.Context, transition capacity.Transition, event broadcaster.Event) Report {
	report := s.toMatching(ctx, func(connection *broadcaster.Connection) bool {
		return ShouldNotify(connection.Role(), transition)
	}, event)

	s.logger.Debug("capacity change distributed",
		zap.Int64("courseId", transition.CourseId),
		zap.Int("oldFreeSpots", transition.OldFreeSpots),
		zap.Int("newFreeSpots", transition.NewFreeSpots),
		zap.Int("delivered", report.Delivered),
		zap.Int("failed", report.Failed))

	return report
}

// ShouldNotify is the role policy for capacity transitions: staff see every
// transition, interested customers only a fully booked course freeing a seat.
func ShouldNotify(role auth.Role, transition capacity.Transition) bool {
	switch {
	case role.IsStaff():
		return true
	case role == auth.RoleInterestedCustomer:
		return transition.CrossedThreshold()
	default:
		return false
	}
}
