package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/goevery/seatcast/internal/broadcaster"
	"github.com/goevery/seatcast/internal/capacity"
	"github.com/goevery/seatcast/internal/collector"
	"github.com/goevery/seatcast/internal/dispatch"
	"github.com/goevery/seatcast/internal/fanout"
	"github.com/goevery/seatcast/internal/ierr"
	"github.com/goevery/seatcast/internal/perf"
	"github.com/goevery/seatcast/internal/persistence"
	"github.com/goevery/seatcast/internal/strategy"
	"go.uber.org/zap"
)

const sourceAnnouncement = "announcement"

type BookingChange struct {
	Transition capacity.Transition `json:"transition"`
	Snapshot   capacity.Record     `json:"snapshot"`
	Report     strategy.Report     `json:"report"`
}

type Deletion struct {
	Result collector.Result
	Fanout fanout.Result
}

// Engine wires capacity tracking, course deletion and history to the
// dispatch context.
type Engine struct {
	logger     *zap.Logger
	tracker    *capacity.Tracker
	dispatcher *dispatch.Context
	collector  *collector.Collector
	fanout     *fanout.Fanout
	history    persistence.EventLog
	monitor    *perf.Monitor
}

func New(
	logger *zap.Logger,
	tracker *capacity.Tracker,
	dispatcher *dispatch.Context,
	collector *collector.Collector,
	fanout *fanout.Fanout,
	history persistence.EventLog,
	monitor *perf.Monitor,
) *Engine {
	return &Engine{
		logger:     logger,
		tracker:    tracker,
		dispatcher: dispatcher,
		collector:  collector,
		fanout:     fanout,
		history:    history,
		monitor:    monitor,
	}
}

// ApplyBookingChange reflects a persisted booking change in the capacity
// cache and notifies the active strategy of the resulting transition.
func (e *Engine) ApplyBookingChange(ctx context.Context, courseId int64, participantDelta int) (BookingChange, error) {
	return perf.Observe(e.monitor, "applyBookingChange", func() (BookingChange, error) {
		transition, snapshot, err := e.tracker.ApplyBookingChange(ctx, courseId, participantDelta)
		if err != nil {
			return BookingChange{}, err
		}

		event, report := e.dispatcher.NotifyCapacityChange(ctx, transition, snapshot)

		e.record(ctx, event)

		return BookingChange{
			Transition: transition,
			Snapshot:   snapshot,
			Report:     report,
		}, nil
	})
}

// DeleteCourse deletes the course and notifies exactly the recipients whose
// bookings went with it. Nothing is sent unless the deletion committed; once
// it has, delivery no longer depends on the caller's context.
func (e *Engine) DeleteCourse(ctx context.Context, courseId int64) (Deletion, error) {
	return perf.Observe(e.monitor, "deleteCourse", func() (Deletion, error) {
		title := fmt.Sprintf("course %d", courseId)
		if record, ok := e.tracker.Get(courseId); ok && record.Title != "" {
			title = record.Title
		}

		var result collector.Result
		err := e.tracker.RemoveIf(courseId, func() (bool, error) {
			var err error
			result, err = e.collector.DeleteAndCollect(ctx, courseId)

			return result.Deleted, err
		})
		if err != nil {
			return Deletion{}, err
		}

		if !result.Deleted {
			return Deletion{Result: result}, nil
		}

		event := broadcaster.NewEvent(
			broadcaster.EventTypeCourseDeleted,
			courseId,
			fmt.Sprintf("%s has been cancelled and your booking was removed", title),
		).WithCourseTitle(title)

		fanoutResult := e.fanout.Deliver(context.WithoutCancel(ctx), result.Recipients, event)

		e.record(ctx, event)

		return Deletion{
			Result: result,
			Fanout: fanoutResult,
		}, nil
	})
}

// Publish sends an announcement about a course on the course updates topic.
func (e *Engine) Publish(ctx context.Context, courseId int64, message string, payload any) (strategy.Report, error) {
	if message == "" {
		return strategy.Report{}, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("message cannot be empty"))
	}

	return perf.Observe(e.monitor, "publish", func() (strategy.Report, error) {
		event := broadcaster.NewEvent(broadcaster.EventTypeAnnouncement, courseId, message).
			WithPayload(payload).
			OnTopic(broadcaster.TopicCourseUpdates)

		report := e.dispatcher.DistributeFrom(ctx, sourceAnnouncement, event)

		e.record(ctx, event)

		return report, nil
	})
}

func (e *Engine) History(ctx context.Context, courseId int64, lastSeenId string) ([]persistence.Entry, error) {
	return perf.Observe(e.monitor, "history", func() ([]persistence.Entry, error) {
		entries, err := e.history.List(ctx, courseId, lastSeenId)
		if err != nil {
			return nil, ierr.New(ierr.ErrorCodeUnavailable, fmt.Errorf("list history: %w", err))
		}

		return entries, nil
	})
}

// record keeps history best effort; a failure never affects delivery.
func (e *Engine) record(ctx context.Context, event broadcaster.Event) {
	_, err := e.history.Save(context.WithoutCancel(ctx), event)
	if err != nil {
		e.logger.Warn("failed to record event history",
			zap.String("eventId", event.Id),
			zap.Int64("courseId", event.CourseId),
			zap.Error(err))
	}
}
