package capacity

import (
	"context"
	"errors"
)

var ErrCourseNotFound = errors.New("course not found")

// Record is the cached capacity state of one course.
type Record struct {
	CourseId    int64  `json:"courseId"`
	Title       string `json:"title"`
	MaxCapacity int    `json:"maxCapacity"`
	BookedCount int    `json:"bookedCount"`
}

// FreeSpots is never negative, even for an overbooked course.
func (r Record) FreeSpots() int {
	return max(r.MaxCapacity-r.BookedCount, 0)
}

// Transition is produced once per capacity mutation.
type Transition struct {
	CourseId     int64 `json:"courseId"`
	OldFreeSpots int   `json:"oldFreeSpots"`
	NewFreeSpots int   `json:"newFreeSpots"`
}

// CrossedThreshold reports whether a fully booked course just freed a seat.
func (t Transition) CrossedThreshold() bool {
	return t.OldFreeSpots == 0 && t.NewFreeSpots >= 1
}

// Store is the read side of the backing store the tracker fills from.
type Store interface {
	ListCapacities(ctx context.Context) ([]Record, error)
	// GetCapacity returns ErrCourseNotFound for unknown courses.
	GetCapacity(ctx context.Context, courseId int64) (Record, error)
}
