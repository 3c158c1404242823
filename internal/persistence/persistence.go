package persistence

import (
	"context"
	"time"

	"github.com/goevery/seatcast/internal/broadcaster"
)

// HistoryPageSize bounds a single List call.
const HistoryPageSize = 100

// EventLog keeps a bounded history of dispatched events per course.
type EventLog interface {
	Setup(ctx context.Context) error
	Save(ctx context.Context, event broadcaster.Event) (Entry, error)
	// List returns the newest entries of a course first. A non-empty
	// lastSeenId restricts the page to entries older than it.
	List(ctx context.Context, courseId int64, lastSeenId string) ([]Entry, error)
}

type Entry struct {
	Id         string            `json:"id"`
	CreateTime time.Time         `json:"createTime"`
	Event      broadcaster.Event `json:"event"`
}
