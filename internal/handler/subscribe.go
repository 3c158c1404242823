package handler

import (
	"context"
	"errors"
	"time"

	"github.com/goevery/seatcast/internal/broadcaster"
	"github.com/goevery/seatcast/internal/ierr"
)

type SubscribeRequest struct {
	Topic string `json:"topic"`
}

type SubscribeResponse struct {
	SubscriptionId string    `json:"subscriptionId,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

type SubscribeHandlerInterface interface {
	Handle(ctx context.Context, req SubscribeRequest) (SubscribeResponse, error)
}

type SubscribeHandler struct {
	topicValidator *TopicValidator
	dispatcher     Dispatcher
}

func NewSubscribeHandler(
	topicValidator *TopicValidator,
	dispatcher Dispatcher,
) *SubscribeHandler {

	return &SubscribeHandler{
		topicValidator,
		dispatcher,
	}
}

func (h *SubscribeHandler) Handle(ctx context.Context, req SubscribeRequest) (SubscribeResponse, error) {
	err := h.topicValidator.Validate(req.Topic)
	if err != nil {
		return SubscribeResponse{}, err
	}

	connection, ok := broadcaster.ConnectionFromContext(ctx)
	if !ok {
		return SubscribeResponse{}, errors.New("connection not found in context")
	}

	if connection.GetAuthentication() == nil {
		return SubscribeResponse{},
			ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("authentication required"))
	}

	err = h.dispatcher.Subscribe(ctx, connection.Id, req.Topic)
	if err != nil {
		return SubscribeResponse{}, err
	}

	return SubscribeResponse{
		SubscriptionId: connection.Id,
		Timestamp:      time.Now(),
	}, nil
}
