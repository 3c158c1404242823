package handler

import (
	"context"
	"time"

	"github.com/goevery/seatcast/internal/broadcaster"
)

type HeartbeatResponse struct {
	ConnectionId string    `json:"connectionId,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

type HeartbeatHandlerInterface interface {
	Handle(ctx context.Context) HeartbeatResponse
}

type HeartbeatHandler struct{}

func NewHeartbeatHandler() *HeartbeatHandler {
	return &HeartbeatHandler{}
}

func (h *HeartbeatHandler) Handle(ctx context.Context) HeartbeatResponse {
	response := HeartbeatResponse{
		Timestamp: time.Now(),
	}

	if connection, ok := broadcaster.ConnectionFromContext(ctx); ok {
		response.ConnectionId = connection.Id
	}

	return response
}
