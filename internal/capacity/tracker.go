package capacity

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/goevery/seatcast/internal/ierr"
	"go.uber.org/zap"
)

type entry struct {
	mu      sync.Mutex
	loaded  bool
	removed bool
	record  Record
}

// Tracker caches capacity records. Updates to one course are serialized by a
// per-course mutex; different courses proceed in parallel.
type Tracker struct {
	logger *zap.Logger
	store  Store

	mu      sync.Mutex
	entries map[int64]*entry
}

func NewTracker(logger *zap.Logger, store Store) *Tracker {
	return &Tracker{
		logger:  logger,
		store:   store,
		entries: make(map[int64]*entry),
	}
}

// Load fills the cache from the store. A failure leaves the cache empty or
// partial; misses are filled lazily by ApplyBookingChange.
func (t *Tracker) Load(ctx context.Context) error {
	records, err := t.store.ListCapacities(ctx)
	if err != nil {
		t.logger.Error("failed to load capacity cache", zap.Error(err))

		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, record := range records {
		// keep entries that were lazily filled in the meantime
		if _, ok := t.entries[record.CourseId]; ok {
			continue
		}

		t.entries[record.CourseId] = &entry{loaded: true, record: record}
	}

	t.logger.Info("capacity cache loaded", zap.Int("courses", len(records)))

	return nil
}

// ApplyBookingChange reflects a booking change the caller already persisted.
// participantDelta is the number of seats released: positive for a
// cancellation, negative for a booking.
func (t *Tracker) ApplyBookingChange(ctx context.Context, courseId int64, participantDelta int) (Transition, Record, error) {
	for {
		e := t.entryFor(courseId)

		e.mu.Lock()
		if e.removed {
			// evicted while we waited for the lock
			e.mu.Unlock()
			continue
		}

		transition, record, err := t.applyLocked(ctx, courseId, participantDelta, e)
		e.mu.Unlock()

		return transition, record, err
	}
}

// IMPORTANT: It must be called only when e.mu is held.
func (t *Tracker) applyLocked(ctx context.Context, courseId int64, participantDelta int, e *entry) (Transition, Record, error) {
	if !e.loaded {
		record, err := t.store.GetCapacity(ctx, courseId)
		if err != nil {
			t.dropEntry(courseId, e)

			if errors.Is(err, ErrCourseNotFound) {
				return Transition{}, Record{}, ierr.New(ierr.ErrorCodeNotFound, fmt.Errorf("course %d: %w", courseId, ErrCourseNotFound))
			}

			return Transition{}, Record{}, ierr.New(ierr.ErrorCodeUnavailable, fmt.Errorf("fetch capacity of course %d: %w", courseId, err))
		}

		e.record = record
		e.loaded = true

		t.logger.Debug("capacity cache filled", zap.Int64("courseId", courseId))
	}

	oldFreeSpots := e.record.FreeSpots()

	e.record.BookedCount = max(e.record.BookedCount-participantDelta, 0)

	transition := Transition{
		CourseId:     courseId,
		OldFreeSpots: oldFreeSpots,
		NewFreeSpots: e.record.FreeSpots(),
	}

	return transition, e.record, nil
}

// RemoveIf runs remove while holding the course lock and evicts the course
// when it reports a deletion. Booking changes for the course wait until it
// returns and then see the course as gone.
func (t *Tracker) RemoveIf(courseId int64, remove func() (bool, error)) error {
	for {
		e := t.entryFor(courseId)

		e.mu.Lock()
		if e.removed {
			e.mu.Unlock()
			continue
		}

		deleted, err := remove()
		if (err == nil && deleted) || !e.loaded {
			t.dropEntry(courseId, e)
		}
		e.mu.Unlock()

		return err
	}
}

func (t *Tracker) Get(courseId int64) (Record, bool) {
	t.mu.Lock()
	e, ok := t.entries[courseId]
	t.mu.Unlock()

	if !ok {
		return Record{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded || e.removed {
		return Record{}, false
	}

	return e.record, true
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.entries)
}

func (t *Tracker) entryFor(courseId int64) *entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[courseId]
	if !ok {
		e = &entry{}
		t.entries[courseId] = e
	}

	return e
}

func (t *Tracker) dropEntry(courseId int64, e *entry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.entries[courseId] == e {
		delete(t.entries, courseId)
	}
	e.removed = true
}
