package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/goevery/seatcast/internal/capacity"
	"github.com/goevery/seatcast/internal/collector"
)

type BookingStatus string

const (
	BookingStatusActive    BookingStatus = "active"
	BookingStatusCancelled BookingStatus = "cancelled"
)

type course struct {
	title       string
	maxCapacity int
}

type booking struct {
	id       int64
	courseId int64
	userId   int64
	status   BookingStatus
}

// Store is an in-process backing store. Row locks are emulated with one lock
// per course, held from the first read of a transaction until it ends.
type Store struct {
	mu            sync.Mutex
	courses       map[int64]course
	contacts      map[int64]string
	bookings      map[int64]booking
	courseLocks   map[int64]chan struct{}
	nextBookingId int64
}

func NewStore() *Store {
	return &Store{
		courses:     make(map[int64]course),
		contacts:    make(map[int64]string),
		bookings:    make(map[int64]booking),
		courseLocks: make(map[int64]chan struct{}),
	}
}

func (s *Store) PutCourse(courseId int64, title string, maxCapacity int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.courses[courseId] = course{title: title, maxCapacity: maxCapacity}
}

func (s *Store) PutUser(userId int64, contactAddress string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.contacts[userId] = contactAddress
}

// Book records an active booking and returns its id. It waits for any
// transaction holding the course lock, so a booking never lands between a
// locked read and the delete that follows it.
func (s *Store) Book(courseId int64, userId int64) (int64, error) {
	lock := s.courseLock(courseId)
	lock <- struct{}{}
	defer func() { <-lock }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.courses[courseId]; !ok {
		return 0, capacity.ErrCourseNotFound
	}

	s.nextBookingId++
	s.bookings[s.nextBookingId] = booking{
		id:       s.nextBookingId,
		courseId: courseId,
		userId:   userId,
		status:   BookingStatusActive,
	}

	return s.nextBookingId, nil
}

// Cancel waits for the course lock like Book.
func (s *Store) Cancel(bookingId int64) error {
	s.mu.Lock()
	b, ok := s.bookings[bookingId]
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("booking %d is not active", bookingId)
	}

	lock := s.courseLock(b.courseId)
	lock <- struct{}{}
	defer func() { <-lock }()

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok = s.bookings[bookingId]
	if !ok || b.status != BookingStatusActive {
		return fmt.Errorf("booking %d is not active", bookingId)
	}

	b.status = BookingStatusCancelled
	s.bookings[bookingId] = b

	return nil
}

func (s *Store) ListCapacities(ctx context.Context) ([]capacity.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]capacity.Record, 0, len(s.courses))
	for courseId := range s.courses {
		records = append(records, s.recordLocked(courseId))
	}

	slices.SortFunc(records, func(a, b capacity.Record) int {
		return cmp.Compare(a.CourseId, b.CourseId)
	})

	return records, nil
}

func (s *Store) GetCapacity(ctx context.Context, courseId int64) (capacity.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.courses[courseId]; !ok {
		return capacity.Record{}, capacity.ErrCourseNotFound
	}

	return s.recordLocked(courseId), nil
}

// IMPORTANT: It must be called only when s.mu is held.
func (s *Store) recordLocked(courseId int64) capacity.Record {
	c := s.courses[courseId]

	booked := 0
	for _, b := range s.bookings {
		if b.courseId == courseId && b.status == BookingStatusActive {
			booked++
		}
	}

	return capacity.Record{
		CourseId:    courseId,
		Title:       c.title,
		MaxCapacity: c.maxCapacity,
		BookedCount: booked,
	}
}

func (s *Store) BeginTx(ctx context.Context) (collector.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &tx{
		store:          s,
		locked:         make(map[int64]chan struct{}),
		lockedBookings: make(map[int64][]int64),
	}, nil
}

func (s *Store) courseLock(courseId int64) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.courseLocks[courseId]
	if !ok {
		lock = make(chan struct{}, 1)
		s.courseLocks[courseId] = lock
	}

	return lock
}

type tx struct {
	store  *Store
	closed bool

	locked          map[int64]chan struct{}
	lockedBookings  map[int64][]int64
	deletedBookings []int64
	deletedCourses  []int64
}

func (t *tx) lock(ctx context.Context, courseId int64) error {
	if _, ok := t.locked[courseId]; ok {
		return nil
	}

	lock := t.store.courseLock(courseId)

	select {
	case lock <- struct{}{}:
		t.locked[courseId] = lock
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *tx) LockActiveBookings(ctx context.Context, courseId int64) ([]collector.Recipient, error) {
	if t.closed {
		return nil, collector.ErrTxClosed
	}

	err := t.lock(ctx, courseId)
	if err != nil {
		return nil, err
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	var recipients []collector.Recipient
	var bookingIds []int64
	for _, b := range t.store.bookings {
		if b.courseId != courseId || b.status != BookingStatusActive {
			continue
		}

		bookingIds = append(bookingIds, b.id)

		recipients = append(recipients, collector.Recipient{
			RecipientId:    b.userId,
			ContactAddress: t.store.contacts[b.userId],
			BookingId:      b.id,
		})
	}

	slices.SortFunc(recipients, func(a, b collector.Recipient) int {
		return cmp.Compare(a.BookingId, b.BookingId)
	})

	t.lockedBookings[courseId] = bookingIds

	return recipients, nil
}

func (t *tx) DeleteActiveBookings(ctx context.Context, courseId int64) (int64, error) {
	if t.closed {
		return 0, collector.ErrTxClosed
	}

	err := t.lock(ctx, courseId)
	if err != nil {
		return 0, err
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	// only rows read under the lock are deleted
	var deleted int64
	for _, bookingId := range t.lockedBookings[courseId] {
		b, ok := t.store.bookings[bookingId]
		if ok && b.status == BookingStatusActive {
			t.deletedBookings = append(t.deletedBookings, b.id)
			deleted++
		}
	}

	return deleted, nil
}

func (t *tx) DeleteCourse(ctx context.Context, courseId int64) (int64, error) {
	if t.closed {
		return 0, collector.ErrTxClosed
	}

	err := t.lock(ctx, courseId)
	if err != nil {
		return 0, err
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	if _, ok := t.store.courses[courseId]; !ok || slices.Contains(t.deletedCourses, courseId) {
		return 0, nil
	}

	t.deletedCourses = append(t.deletedCourses, courseId)

	return 1, nil
}

func (t *tx) Commit(ctx context.Context) error {
	if t.closed {
		return collector.ErrTxClosed
	}

	t.store.mu.Lock()
	for _, bookingId := range t.deletedBookings {
		delete(t.store.bookings, bookingId)
	}
	for _, courseId := range t.deletedCourses {
		delete(t.store.courses, courseId)
	}
	t.store.mu.Unlock()

	t.release()

	return nil
}

func (t *tx) Rollback(ctx context.Context) error {
	if t.closed {
		return collector.ErrTxClosed
	}

	t.deletedBookings = nil
	t.deletedCourses = nil
	t.release()

	return nil
}

func (t *tx) release() {
	t.closed = true

	for courseId, lock := range t.locked {
		<-lock
		delete(t.locked, courseId)
	}
}

var (
	_ collector.TxBeginner = (*Store)(nil)
	_ capacity.Store       = (*Store)(nil)
)
