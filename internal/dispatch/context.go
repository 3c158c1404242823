package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/goevery/seatcast/internal/broadcaster"
	"github.com/goevery/seatcast/internal/capacity"
	"github.com/goevery/seatcast/internal/ierr"
	"github.com/goevery/seatcast/internal/strategy"
	"go.uber.org/zap"
)

var ErrNotInitialized = errors.New("dispatch context used before Init")

// source is implemented by strategies that route events through named
// emitters instead of a single entry point.
type source interface {
	Colleague(name string) *strategy.Colleague
}

// Context is the single routing point between the rest of the process and the
// active delivery strategy. The strategy kind is fixed at construction.
type Context struct {
	logger *zap.Logger
	kind   strategy.Kind

	mu       sync.RWMutex
	strategy strategy.Strategy
}

func New(logger *zap.Logger, kind strategy.Kind) *Context {
	return &Context{
		logger: logger.Named("dispatch"),
		kind:   kind,
	}
}

func (c *Context) Kind() strategy.Kind {
	return c.kind
}

// Init binds the configured strategy to the live transport. It can only
// succeed once.
func (c *Context) Init(transport broadcaster.Transport) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.strategy != nil {
		return ierr.New(ierr.ErrorCodeFailedPrecondition, errors.New("dispatch context already initialized"))
	}

	s, err := strategy.New(c.kind, c.logger, transport)
	if err != nil {
		return err
	}

	c.strategy = s

	c.logger.Info("dispatch context initialized", zap.String("strategy", string(c.kind)))

	return nil
}

func (c *Context) active(operation string) (strategy.Strategy, bool) {
	c.mu.RLock()
	s := c.strategy
	c.mu.RUnlock()

	if s == nil {
		c.logger.Error("dispatch operation ignored",
			zap.String("operation", operation),
			zap.Error(ErrNotInitialized))

		return nil, false
	}

	return s, true
}

func (c *Context) OnConnect(ctx context.Context, connection *broadcaster.Connection) error {
	s, ok := c.active("OnConnect")
	if !ok {
		return nil
	}

	return s.RegisterClient(ctx, connection)
}

func (c *Context) OnDisconnect(ctx context.Context, connectionId string) {
	s, ok := c.active("OnDisconnect")
	if !ok {
		return
	}

	s.UnregisterClient(ctx, connectionId)
}

func (c *Context) Subscribe(ctx context.Context, connectionId string, topic string) error {
	s, ok := c.active("Subscribe")
	if !ok {
		return nil
	}

	return s.Subscribe(ctx, connectionId, topic)
}

func (c *Context) Unsubscribe(ctx context.Context, connectionId string, topic string) {
	s, ok := c.active("Unsubscribe")
	if !ok {
		return
	}

	s.Unsubscribe(ctx, connectionId, topic)
}

func (c *Context) Distribute(ctx context.Context, event broadcaster.Event) strategy.Report {
	s, ok := c.active("Distribute")
	if !ok {
		return strategy.Report{}
	}

	return s.Distribute(ctx, event)
}

// DistributeFrom is Distribute tagged with the emitting source. Mediated
// strategies relay it through that source's colleague.
func (c *Context) DistributeFrom(ctx context.Context, name string, event broadcaster.Event) strategy.Report {
	s, ok := c.active("DistributeFrom")
	if !ok {
		return strategy.Report{}
	}

	if mediated, ok := s.(source); ok {
		return mediated.Colleague(name).Emit(ctx, event)
	}

	return s.Distribute(ctx, event)
}

// NotifyCapacityChange lets capacity-aware strategies apply their own policy.
// Other strategies get a plain course update without the transition payload
// and no role filtering. The returned event is the one handed to the strategy.
func (c *Context) NotifyCapacityChange(ctx context.Context, transition capacity.Transition, snapshot capacity.Record) (broadcaster.Event, strategy.Report) {
	event := strategy.CapacityEvent(transition, snapshot)

	s, ok := c.active("NotifyCapacityChange")
	if !ok {
		return event, strategy.Report{}
	}

	if notifier, ok := s.(strategy.CapacityNotifier); ok {
		return event, notifier.NotifyCapacityChange(ctx, transition, event)
	}

	c.logger.Warn("strategy is not capacity aware, role and threshold filtering bypassed",
		zap.Int64("courseId", transition.CourseId))

	event = event.WithPayload(nil)

	return event, s.Distribute(ctx, event)
}
