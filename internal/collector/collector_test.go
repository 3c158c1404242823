package collector_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/goevery/seatcast/internal/collector"
	"github.com/goevery/seatcast/internal/ierr"
	"github.com/goevery/seatcast/internal/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockTx struct {
	mock.Mock
}

func (m *MockTx) LockActiveBookings(ctx context.Context, courseId int64) ([]collector.Recipient, error) {
	args := m.Called(ctx, courseId)
	recipients, _ := args.Get(0).([]collector.Recipient)
	return recipients, args.Error(1)
}

func (m *MockTx) DeleteActiveBookings(ctx context.Context, courseId int64) (int64, error) {
	args := m.Called(ctx, courseId)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTx) DeleteCourse(ctx context.Context, courseId int64) (int64, error) {
	args := m.Called(ctx, courseId)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTx) Commit(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockTx) Rollback(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type txBeginner struct {
	tx  collector.Tx
	err error
}

func (b txBeginner) BeginTx(ctx context.Context) (collector.Tx, error) {
	return b.tx, b.err
}

func seed(store *memory.Store) {
	store.PutCourse(42, "Crossfit", 10)
	store.PutCourse(43, "Yoga", 10)
	store.PutUser(7, "seven@example.com")
	store.PutUser(9, "nine@example.com")
	store.PutUser(11, "")
}

func TestDeleteAndCollect_ReturnsAffectedRecipients(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seed(store)

	first, err := store.Book(42, 7)
	require.NoError(t, err)
	second, err := store.Book(42, 9)
	require.NoError(t, err)
	cancelled, err := store.Book(42, 11)
	require.NoError(t, err)
	require.NoError(t, store.Cancel(cancelled))
	_, err = store.Book(43, 7)
	require.NoError(t, err)

	c := collector.New(zap.NewNop(), store)

	result, err := c.DeleteAndCollect(ctx, 42)
	require.NoError(t, err)
	assert.True(t, result.Deleted)
	assert.Equal(t, int64(42), result.DeletedCourseId)
	assert.Equal(t, []collector.Recipient{
		{RecipientId: 7, ContactAddress: "seven@example.com", BookingId: first},
		{RecipientId: 9, ContactAddress: "nine@example.com", BookingId: second},
	}, result.Recipients)

	result, err = c.DeleteAndCollect(ctx, 42)
	require.NoError(t, err)
	assert.False(t, result.Deleted)
	assert.Empty(t, result.Recipients)

	_, err = store.GetCapacity(ctx, 42)
	assert.Error(t, err)

	other, err := store.GetCapacity(ctx, 43)
	require.NoError(t, err)
	assert.Equal(t, 1, other.BookedCount)
}

func TestDeleteAndCollect_CourseWithoutBookings(t *testing.T) {
	store := memory.NewStore()
	seed(store)

	result, err := collector.New(zap.NewNop(), store).DeleteAndCollect(context.Background(), 43)

	require.NoError(t, err)
	assert.True(t, result.Deleted)
	assert.Empty(t, result.Recipients)
}

func TestDeleteAndCollect_UnknownCourse(t *testing.T) {
	store := memory.NewStore()
	seed(store)

	result, err := collector.New(zap.NewNop(), store).DeleteAndCollect(context.Background(), 1000)

	require.NoError(t, err)
	assert.Equal(t, collector.Result{}, result)
}

func TestDeleteAndCollect_DeduplicatesRecipients(t *testing.T) {
	store := memory.NewStore()
	seed(store)

	for range 3 {
		_, err := store.Book(42, 7)
		require.NoError(t, err)
	}

	result, err := collector.New(zap.NewNop(), store).DeleteAndCollect(context.Background(), 42)

	require.NoError(t, err)
	require.Len(t, result.Recipients, 1)
	assert.Equal(t, int64(7), result.Recipients[0].RecipientId)
}

func TestDeleteAndCollect_ConcurrentDeletion(t *testing.T) {
	store := memory.NewStore()
	seed(store)

	for _, userId := range []int64{7, 9, 11} {
		_, err := store.Book(42, userId)
		require.NoError(t, err)
	}

	c := collector.New(zap.NewNop(), store)

	const attempts = 8
	results := make([]collector.Result, attempts)
	errs := make([]error, attempts)

	var wg sync.WaitGroup
	for i := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = c.DeleteAndCollect(context.Background(), 42)
		}()
	}
	wg.Wait()

	deleted := 0
	for i := range attempts {
		require.NoError(t, errs[i])

		if results[i].Deleted {
			deleted++
			assert.Len(t, results[i].Recipients, 3)
		} else {
			assert.Empty(t, results[i].Recipients)
		}
	}

	assert.Equal(t, 1, deleted)
}

func TestDeleteAndCollect_FailuresAbort(t *testing.T) {
	failure := errors.New("connection reset")
	recipients := []collector.Recipient{{RecipientId: 7, BookingId: 1}}

	cases := []struct {
		name  string
		setup func(tx *MockTx)
	}{
		{
			name: "lock",
			setup: func(tx *MockTx) {
				tx.On("LockActiveBookings", mock.Anything, int64(42)).Return(nil, failure)
			},
		},
		{
			name: "delete bookings",
			setup: func(tx *MockTx) {
				tx.On("LockActiveBookings", mock.Anything, int64(42)).Return(recipients, nil)
				tx.On("DeleteActiveBookings", mock.Anything, int64(42)).Return(int64(0), failure)
			},
		},
		{
			name: "delete course",
			setup: func(tx *MockTx) {
				tx.On("LockActiveBookings", mock.Anything, int64(42)).Return(recipients, nil)
				tx.On("DeleteActiveBookings", mock.Anything, int64(42)).Return(int64(1), nil)
				tx.On("DeleteCourse", mock.Anything, int64(42)).Return(int64(0), failure)
			},
		},
		{
			name: "commit",
			setup: func(tx *MockTx) {
				tx.On("LockActiveBookings", mock.Anything, int64(42)).Return(recipients, nil)
				tx.On("DeleteActiveBookings", mock.Anything, int64(42)).Return(int64(1), nil)
				tx.On("DeleteCourse", mock.Anything, int64(42)).Return(int64(1), nil)
				tx.On("Commit", mock.Anything).Return(failure)
			},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			tx := new(MockTx)
			c.setup(tx)
			tx.On("Rollback", mock.Anything).Return(nil)

			result, err := collector.New(zap.NewNop(), txBeginner{tx: tx}).DeleteAndCollect(context.Background(), 42)

			assert.ErrorIs(t, err, failure)
			assert.Equal(t, ierr.ErrorCodeAborted, ierr.CodeOf(err))
			assert.Equal(t, collector.Result{}, result)
			tx.AssertCalled(t, "Rollback", mock.Anything)
		})
	}
}

func TestDeleteAndCollect_BeginFailureAborts(t *testing.T) {
	failure := errors.New("pool closed")

	_, err := collector.New(zap.NewNop(), txBeginner{err: failure}).DeleteAndCollect(context.Background(), 42)

	assert.ErrorIs(t, err, failure)
	assert.Equal(t, ierr.ErrorCodeAborted, ierr.CodeOf(err))
}

func TestDeleteAndCollect_NotFoundRollsBack(t *testing.T) {
	tx := new(MockTx)
	tx.On("LockActiveBookings", mock.Anything, int64(42)).Return(nil, nil)
	tx.On("DeleteActiveBookings", mock.Anything, int64(42)).Return(int64(0), nil)
	tx.On("DeleteCourse", mock.Anything, int64(42)).Return(int64(0), nil)
	tx.On("Rollback", mock.Anything).Return(nil)

	result, err := collector.New(zap.NewNop(), txBeginner{tx: tx}).DeleteAndCollect(context.Background(), 42)

	require.NoError(t, err)
	assert.False(t, result.Deleted)
	tx.AssertNotCalled(t, "Commit", mock.Anything)
	tx.AssertExpectations(t)
}
