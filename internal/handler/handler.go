package handler

import (
	"context"
	"errors"

	"github.com/goevery/seatcast/internal/auth"
	"github.com/goevery/seatcast/internal/broadcaster"
	"github.com/goevery/seatcast/internal/engine"
	"github.com/goevery/seatcast/internal/ierr"
	"github.com/goevery/seatcast/internal/persistence"
	"github.com/goevery/seatcast/internal/strategy"
)

// Dispatcher is the connection side of the dispatch context.
type Dispatcher interface {
	OnConnect(ctx context.Context, connection *broadcaster.Connection) error
	Subscribe(ctx context.Context, connectionId string, topic string) error
	Unsubscribe(ctx context.Context, connectionId string, topic string)
}

// Engine is the course side of the notification engine.
type Engine interface {
	ApplyBookingChange(ctx context.Context, courseId int64, participantDelta int) (engine.BookingChange, error)
	DeleteCourse(ctx context.Context, courseId int64) (engine.Deletion, error)
	Publish(ctx context.Context, courseId int64, message string, payload any) (strategy.Report, error)
	History(ctx context.Context, courseId int64, lastSeenId string) ([]persistence.Entry, error)
}

// authenticationFrom prefers the websocket session and falls back to the
// request context set by the REST server.
func authenticationFrom(ctx context.Context) (*auth.Authentication, error) {
	var authentication *auth.Authentication

	connection, ok := broadcaster.ConnectionFromContext(ctx)
	if ok {
		authentication = connection.GetAuthentication()
	}

	if authentication == nil {
		authentication, ok = auth.AuthenticationFromContext(ctx)
		if !ok {
			return nil, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("user not authenticated"))
		}
	}

	return authentication, nil
}

func requirePublisher(ctx context.Context) error {
	authentication, err := authenticationFrom(ctx)
	if err != nil {
		return err
	}

	if !authentication.IsPublisher() {
		return ierr.New(ierr.ErrorCodePermissionDenied, errors.New("user not authorized to publish course events"))
	}

	return nil
}

func validateCourseId(courseId int64) error {
	if courseId <= 0 {
		return ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("courseId must be positive"))
	}

	return nil
}
