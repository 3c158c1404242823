package handler

import (
	"context"

	"github.com/goevery/seatcast/internal/persistence"
)

type HistoryRequest struct {
	CourseId   int64  `json:"courseId"`
	LastSeenId string `json:"lastSeenId,omitempty"`
}

type HistoryResponse struct {
	Entries []persistence.Entry `json:"entries"`
}

type HistoryHandlerInterface interface {
	Handle(ctx context.Context, req HistoryRequest) (HistoryResponse, error)
}

type HistoryHandler struct {
	engine Engine
}

func NewHistoryHandler(engine Engine) *HistoryHandler {
	return &HistoryHandler{
		engine,
	}
}

func (h *HistoryHandler) Handle(ctx context.Context, req HistoryRequest) (HistoryResponse, error) {
	_, err := authenticationFrom(ctx)
	if err != nil {
		return HistoryResponse{}, err
	}

	err = validateCourseId(req.CourseId)
	if err != nil {
		return HistoryResponse{}, err
	}

	entries, err := h.engine.History(ctx, req.CourseId, req.LastSeenId)
	if err != nil {
		return HistoryResponse{}, err
	}

	if entries == nil {
		entries = []persistence.Entry{}
	}

	return HistoryResponse{
		Entries: entries,
	}, nil
}
