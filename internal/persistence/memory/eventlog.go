package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goevery/seatcast/internal/broadcaster"
	"github.com/goevery/seatcast/internal/persistence"
)

// EventLog keeps history in process. Entries never expire.
type EventLog struct {
	mu       sync.RWMutex
	sequence int64
	byCourse map[int64][]persistence.Entry
}

func NewEventLog() *EventLog {
	return &EventLog{
		byCourse: make(map[int64][]persistence.Entry),
	}
}

func (l *EventLog) Setup(ctx context.Context) error {
	return nil
}

func (l *EventLog) Save(ctx context.Context, event broadcaster.Event) (persistence.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sequence++
	entry := persistence.Entry{
		// zero padded so ids order lexically
		Id:         fmt.Sprintf("%020d", l.sequence),
		CreateTime: time.Now().UTC(),
		Event:      event,
	}

	l.byCourse[event.CourseId] = append(l.byCourse[event.CourseId], entry)

	return entry, nil
}

func (l *EventLog) List(ctx context.Context, courseId int64, lastSeenId string) ([]persistence.Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := l.byCourse[courseId]

	page := make([]persistence.Entry, 0, min(len(entries), persistence.HistoryPageSize))
	for i := len(entries) - 1; i >= 0 && len(page) < persistence.HistoryPageSize; i-- {
		if lastSeenId != "" && entries[i].Id >= lastSeenId {
			continue
		}

		page = append(page, entries[i])
	}

	return page, nil
}

var _ persistence.EventLog = (*EventLog)(nil)
