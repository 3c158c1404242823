package handler

import (
	"context"

	"github.com/goevery/seatcast/internal/capacity"
	"github.com/goevery/seatcast/internal/collector"
	"github.com/goevery/seatcast/internal/strategy"
)

type BookingChangeRequest struct {
	CourseId int64 `json:"courseId"`
	// ParticipantDelta is the number of seats released: positive for a
	// cancellation, negative for a booking.
	ParticipantDelta int `json:"participantDelta"`
}

type BookingChangeResponse struct {
	Transition     capacity.Transition `json:"transition"`
	SeatsAvailable int                 `json:"seatsAvailable"`
	Report         strategy.Report     `json:"report"`
}

type BookingChangeHandlerInterface interface {
	Handle(ctx context.Context, req BookingChangeRequest) (BookingChangeResponse, error)
}

type BookingChangeHandler struct {
	engine Engine
}

func NewBookingChangeHandler(engine Engine) *BookingChangeHandler {
	return &BookingChangeHandler{
		engine,
	}
}

func (h *BookingChangeHandler) Handle(ctx context.Context, req BookingChangeRequest) (BookingChangeResponse, error) {
	err := requirePublisher(ctx)
	if err != nil {
		return BookingChangeResponse{}, err
	}

	err = validateCourseId(req.CourseId)
	if err != nil {
		return BookingChangeResponse{}, err
	}

	change, err := h.engine.ApplyBookingChange(ctx, req.CourseId, req.ParticipantDelta)
	if err != nil {
		return BookingChangeResponse{}, err
	}

	return BookingChangeResponse{
		Transition:     change.Transition,
		SeatsAvailable: change.Snapshot.FreeSpots(),
		Report:         change.Report,
	}, nil
}

type DeleteCourseRequest struct {
	CourseId int64 `json:"courseId"`
}

// DeleteCourseResponse has a null DeletedCourseId and no recipients when the
// course did not exist.
type DeleteCourseResponse struct {
	DeletedCourseId    *int64                `json:"deletedCourseId"`
	AffectedRecipients []collector.Recipient `json:"affectedRecipients"`
	MailFailures       int                   `json:"mailFailures"`
	LiveFailures       int                   `json:"liveFailures"`
}

type DeleteCourseHandlerInterface interface {
	Handle(ctx context.Context, req DeleteCourseRequest) (DeleteCourseResponse, error)
}

type DeleteCourseHandler struct {
	engine Engine
}

func NewDeleteCourseHandler(engine Engine) *DeleteCourseHandler {
	return &DeleteCourseHandler{
		engine,
	}
}

func (h *DeleteCourseHandler) Handle(ctx context.Context, req DeleteCourseRequest) (DeleteCourseResponse, error) {
	err := requirePublisher(ctx)
	if err != nil {
		return DeleteCourseResponse{}, err
	}

	err = validateCourseId(req.CourseId)
	if err != nil {
		return DeleteCourseResponse{}, err
	}

	deletion, err := h.engine.DeleteCourse(ctx, req.CourseId)
	if err != nil {
		return DeleteCourseResponse{}, err
	}

	response := DeleteCourseResponse{
		AffectedRecipients: []collector.Recipient{},
	}

	if deletion.Result.Deleted {
		response.DeletedCourseId = &deletion.Result.DeletedCourseId
		response.AffectedRecipients = append(response.AffectedRecipients, deletion.Result.Recipients...)
		response.MailFailures = deletion.Fanout.MailFailed
		response.LiveFailures = deletion.Fanout.PushFailed
	}

	return response, nil
}
