package handler

import (
	"context"
	"errors"

	"github.com/goevery/seatcast/internal/broadcaster"
)

type UnsubscribeRequest struct {
	Topic string `json:"topic"`
}

type UnsubscribeResponse struct {
	Success bool `json:"success"`
}

type UnsubscribeHandlerInterface interface {
	Handle(ctx context.Context, req UnsubscribeRequest) (UnsubscribeResponse, error)
}

type UnsubscribeHandler struct {
	topicValidator *TopicValidator
	dispatcher     Dispatcher
}

func NewUnsubscribeHandler(
	topicValidator *TopicValidator,
	dispatcher Dispatcher,
) *UnsubscribeHandler {
	return &UnsubscribeHandler{
		topicValidator,
		dispatcher,
	}
}

func (h *UnsubscribeHandler) Handle(ctx context.Context, req UnsubscribeRequest) (UnsubscribeResponse, error) {
	err := h.topicValidator.Validate(req.Topic)
	if err != nil {
		return UnsubscribeResponse{}, err
	}

	connection, ok := broadcaster.ConnectionFromContext(ctx)
	if !ok {
		return UnsubscribeResponse{}, errors.New("connection not found in context")
	}

	h.dispatcher.Unsubscribe(ctx, connection.Id, req.Topic)

	return UnsubscribeResponse{
		Success: true,
	}, nil
}
