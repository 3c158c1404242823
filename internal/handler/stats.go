package handler

import (
	"context"

	"github.com/goevery/seatcast/internal/perf"
)

type StatsResponse struct {
	Operations map[string]perf.Stat `json:"operations"`
}

type StatsHandlerInterface interface {
	Handle(ctx context.Context) (StatsResponse, error)
}

type StatsSource interface {
	Snapshot() map[string]perf.Stat
}

type StatsHandler struct {
	source StatsSource
}

func NewStatsHandler(source StatsSource) *StatsHandler {
	return &StatsHandler{
		source,
	}
}

func (h *StatsHandler) Handle(ctx context.Context) (StatsResponse, error) {
	err := requirePublisher(ctx)
	if err != nil {
		return StatsResponse{}, err
	}

	return StatsResponse{
		Operations: h.source.Snapshot(),
	}, nil
}
