package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/goevery/seatcast/internal/capacity"
	"github.com/goevery/seatcast/internal/collector"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool}
}

const capacityQuery = `
SELECT c.id, c.title, c.max_capacity,
       COUNT(b.id) FILTER (WHERE b.status = 'active')
FROM courses c
LEFT JOIN bookings b ON b.course_id = c.id`

func (s *Store) ListCapacities(ctx context.Context) ([]capacity.Record, error) {
	rows, err := s.pool.Query(ctx, capacityQuery+` GROUP BY c.id ORDER BY c.id`)
	if err != nil {
		return nil, fmt.Errorf("list capacities: %w", err)
	}

	records, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("list capacities: %w", err)
	}

	return records, nil
}

func (s *Store) GetCapacity(ctx context.Context, courseId int64) (capacity.Record, error) {
	rows, err := s.pool.Query(ctx, capacityQuery+` WHERE c.id = $1 GROUP BY c.id`, courseId)
	if err != nil {
		return capacity.Record{}, fmt.Errorf("get capacity: %w", err)
	}

	record, err := pgx.CollectExactlyOneRow(rows, scanRecord)
	if errors.Is(err, pgx.ErrNoRows) {
		return capacity.Record{}, capacity.ErrCourseNotFound
	}
	if err != nil {
		return capacity.Record{}, fmt.Errorf("get capacity: %w", err)
	}

	return record, nil
}

func scanRecord(row pgx.CollectableRow) (capacity.Record, error) {
	var record capacity.Record
	var booked int64

	err := row.Scan(&record.CourseId, &record.Title, &record.MaxCapacity, &booked)
	record.BookedCount = int(booked)

	return record, err
}

func (s *Store) BeginTx(ctx context.Context) (collector.Tx, error) {
	pgxTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	return &tx{pgxTx}, nil
}

type tx struct {
	tx pgx.Tx
}

func (t *tx) LockActiveBookings(ctx context.Context, courseId int64) ([]collector.Recipient, error) {
	// the course row lock blocks new bookings until the transaction ends
	_, err := t.tx.Exec(ctx, `SELECT id FROM courses WHERE id = $1 FOR UPDATE`, courseId)
	if err != nil {
		return nil, fmt.Errorf("lock course: %w", err)
	}

	rows, err := t.tx.Query(ctx, `
SELECT b.user_id, u.email, b.id
FROM bookings b
JOIN users u ON u.id = b.user_id
WHERE b.course_id = $1 AND b.status = 'active'
ORDER BY b.id
FOR UPDATE OF b`, courseId)
	if err != nil {
		return nil, fmt.Errorf("lock bookings: %w", err)
	}

	recipients, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (collector.Recipient, error) {
		var recipient collector.Recipient
		err := row.Scan(&recipient.RecipientId, &recipient.ContactAddress, &recipient.BookingId)
		return recipient, err
	})
	if err != nil {
		return nil, fmt.Errorf("lock bookings: %w", err)
	}

	return recipients, nil
}

func (t *tx) DeleteActiveBookings(ctx context.Context, courseId int64) (int64, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM bookings WHERE course_id = $1 AND status = 'active'`, courseId)
	if err != nil {
		return 0, fmt.Errorf("delete bookings: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (t *tx) DeleteCourse(ctx context.Context, courseId int64) (int64, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM courses WHERE id = $1`, courseId)
	if err != nil {
		return 0, fmt.Errorf("delete course: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (t *tx) Commit(ctx context.Context) error {
	return closeErr(t.tx.Commit(ctx))
}

func (t *tx) Rollback(ctx context.Context) error {
	return closeErr(t.tx.Rollback(ctx))
}

func closeErr(err error) error {
	if errors.Is(err, pgx.ErrTxClosed) {
		return collector.ErrTxClosed
	}

	return err
}

var (
	_ capacity.Store       = (*Store)(nil)
	_ collector.TxBeginner = (*Store)(nil)
)
