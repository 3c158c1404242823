package collector

import (
	"context"
	"errors"
	"fmt"

	"github.com/goevery/seatcast/internal/ierr"
	"go.uber.org/zap"
)

// Recipient is a booker whose active booking is removed by a course deletion.
type Recipient struct {
	RecipientId    int64  `json:"recipientId"`
	ContactAddress string `json:"contactAddress,omitempty"`
	BookingId      int64  `json:"bookingId"`
}

// Result carries recipients only when the course was deleted in the same
// transaction that found them.
type Result struct {
	DeletedCourseId int64
	Deleted         bool
	Recipients      []Recipient
}

// Tx is the transactional contract the collector needs from the backing store.
type Tx interface {
	// LockActiveBookings locks the course and its active bookings until the
	// transaction ends and returns the bookers.
	LockActiveBookings(ctx context.Context, courseId int64) ([]Recipient, error)
	// DeleteActiveBookings deletes the bookings locked by LockActiveBookings.
	DeleteActiveBookings(ctx context.Context, courseId int64) (int64, error)
	// DeleteCourse returns the number of deleted rows.
	DeleteCourse(ctx context.Context, courseId int64) (int64, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type TxBeginner interface {
	BeginTx(ctx context.Context) (Tx, error)
}

type Collector struct {
	logger *zap.Logger
	db     TxBeginner
}

func New(logger *zap.Logger, db TxBeginner) *Collector {
	return &Collector{
		logger: logger,
		db:     db,
	}
}

// DeleteAndCollect deletes the course with its active bookings and returns the
// affected recipients as one atomic unit. A missing course is not an error:
// the result is not Deleted and carries no recipients. Any other failure rolls
// back and is returned with code Aborted.
func (c *Collector) DeleteAndCollect(ctx context.Context, courseId int64) (Result, error) {
	tx, err := c.db.BeginTx(ctx)
	if err != nil {
		return Result{}, c.abort(courseId, "begin", err)
	}

	recipients, err := tx.LockActiveBookings(ctx, courseId)
	if err != nil {
		c.rollback(ctx, tx, courseId)
		return Result{}, c.abort(courseId, "lock bookings", err)
	}

	_, err = tx.DeleteActiveBookings(ctx, courseId)
	if err != nil {
		c.rollback(ctx, tx, courseId)
		return Result{}, c.abort(courseId, "delete bookings", err)
	}

	deleted, err := tx.DeleteCourse(ctx, courseId)
	if err != nil {
		c.rollback(ctx, tx, courseId)
		return Result{}, c.abort(courseId, "delete course", err)
	}

	if deleted == 0 {
		c.rollback(ctx, tx, courseId)

		c.logger.Info("course not found for deletion", zap.Int64("courseId", courseId))

		return Result{}, nil
	}

	err = tx.Commit(ctx)
	if err != nil {
		c.rollback(ctx, tx, courseId)
		return Result{}, c.abort(courseId, "commit", err)
	}

	recipients = dedupe(recipients)

	c.logger.Info("course deleted",
		zap.Int64("courseId", courseId),
		zap.Int("recipients", len(recipients)))

	return Result{
		DeletedCourseId: courseId,
		Deleted:         true,
		Recipients:      recipients,
	}, nil
}

func (c *Collector) abort(courseId int64, step string, err error) error {
	c.logger.Error("course deletion aborted",
		zap.Int64("courseId", courseId),
		zap.String("step", step),
		zap.Error(err))

	return ierr.New(ierr.ErrorCodeAborted, fmt.Errorf("delete course %d: %s: %w", courseId, step, err))
}

func (c *Collector) rollback(ctx context.Context, tx Tx, courseId int64) {
	// the request context may already be done
	err := tx.Rollback(context.WithoutCancel(ctx))
	if err != nil && !errors.Is(err, ErrTxClosed) {
		c.logger.Warn("rollback failed", zap.Int64("courseId", courseId), zap.Error(err))
	}
}

// ErrTxClosed is returned by Tx implementations on a second Commit or Rollback.
var ErrTxClosed = errors.New("transaction already closed")

// dedupe keeps one entry per recipient, in first-seen order.
func dedupe(recipients []Recipient) []Recipient {
	seen := make(map[int64]struct{}, len(recipients))
	unique := make([]Recipient, 0, len(recipients))

	for _, recipient := range recipients {
		if _, ok := seen[recipient.RecipientId]; ok {
			continue
		}

		seen[recipient.RecipientId] = struct{}{}
		unique = append(unique, recipient)
	}

	return unique
}
