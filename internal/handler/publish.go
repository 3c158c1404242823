package handler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goevery/seatcast/internal/ierr"
	"github.com/goevery/seatcast/internal/strategy"
)

type PublishRequest struct {
	CourseId int64  `json:"courseId"`
	Message  string `json:"message"`
	Payload  any    `json:"payload,omitempty"`
}

type PublishResponse struct {
	Report    strategy.Report `json:"report"`
	Timestamp time.Time       `json:"timestamp"`
}

type PublishHandlerInterface interface {
	Handle(ctx context.Context, req PublishRequest) (PublishResponse, error)
}

type PublishHandler struct {
	engine Engine
}

func NewPublishHandler(engine Engine) *PublishHandler {
	return &PublishHandler{
		engine,
	}
}

func (h *PublishHandler) Handle(ctx context.Context, req PublishRequest) (PublishResponse, error) {
	err := requirePublisher(ctx)
	if err != nil {
		return PublishResponse{}, err
	}

	err = validateCourseId(req.CourseId)
	if err != nil {
		return PublishResponse{}, err
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		return PublishResponse{}, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("message cannot be empty"))
	}

	report, err := h.engine.Publish(ctx, req.CourseId, message, req.Payload)
	if err != nil {
		return PublishResponse{}, err
	}

	return PublishResponse{
		Report:    report,
		Timestamp: time.Now(),
	}, nil
}
