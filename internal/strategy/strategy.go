package strategy

import (
	"context"
	"fmt"
	"strings"

	"github.com/goevery/seatcast/internal/broadcaster"
	"github.com/goevery/seatcast/internal/capacity"
	"go.uber.org/zap"
)

type Kind string

const (
	KindBroadcastAll        Kind = "broadcast-all"
	KindMediator            Kind = "mediator"
	KindPubSub              Kind = "pubsub"
	KindThresholdRoleFilter Kind = "threshold-role-filter"
)

// DefaultKind is used when the configured value is not recognised.
const DefaultKind = KindThresholdRoleFilter

var kinds = []Kind{KindBroadcastAll, KindMediator, KindPubSub, KindThresholdRoleFilter}

type ConfigurationError struct {
	Value string
}

func (e ConfigurationError) Error() string {
	return fmt.Sprintf("unrecognized delivery strategy %q, expected one of %v", e.Value, kinds)
}

// ParseKind validates a configured strategy name.
func ParseKind(value string) (Kind, error) {
	normalized := Kind(strings.ToLower(strings.TrimSpace(value)))

	for _, kind := range kinds {
		if normalized == kind {
			return kind, nil
		}
	}

	return "", ConfigurationError{Value: value}
}

// Report counts per-connection outcomes of one fan-out.
type Report struct {
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

func (r Report) Add(other Report) Report {
	return Report{
		Delivered: r.Delivered + other.Delivered,
		Failed:    r.Failed + other.Failed,
	}
}

type Strategy interface {
	Kind() Kind
	RegisterClient(ctx context.Context, connection *broadcaster.Connection) error
	UnregisterClient(ctx context.Context, connectionId string)
	Subscribe(ctx context.Context, connectionId string, topic string) error
	Unsubscribe(ctx context.Context, connectionId string, topic string)
	Distribute(ctx context.Context, event broadcaster.Event) Report
}

// CapacityNotifier is implemented by strategies that apply their own policy
// to capacity transitions. event is the CapacityEvent of the transition.
type CapacityNotifier interface {
	NotifyCapacityChange(ctx context.Context, transition capacity.Transition, event broadcaster.Event) Report
}

func New(kind Kind, logger *zap.Logger, transport broadcaster.Transport) (Strategy, error) {
	logger = logger.With(zap.String("strategy", string(kind)))
	registry := broadcaster.NewInMemoryRegistry(logger)

	switch kind {
	case KindBroadcastAll:
		return NewBroadcastAll(logger, registry, transport), nil
	case KindMediator:
		return NewMediator(logger, registry, transport), nil
	case KindPubSub:
		return NewPubSub(logger, registry, transport), nil
	case KindThresholdRoleFilter:
		return NewThresholdRoleFilter(logger, registry, transport), nil
	default:
		return nil, ConfigurationError{Value: string(kind)}
	}
}

// CapacityEvent describes a transition for delivery to live connections.
func CapacityEvent(transition capacity.Transition, snapshot capacity.Record) broadcaster.Event {
	message := fmt.Sprintf("%q now has %d free seats", snapshot.Title, transition.NewFreeSpots)
	if transition.CrossedThreshold() {
		message = fmt.Sprintf("A seat just became available in %q", snapshot.Title)
	}

	return broadcaster.NewEvent(broadcaster.EventTypeCapacityChanged, transition.CourseId, message).
		WithCourseTitle(snapshot.Title).
		WithSeatsAvailable(transition.NewFreeSpots).
		WithPayload(transition).
		OnTopic(broadcaster.TopicCourseUpdates)
}
