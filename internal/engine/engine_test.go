package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/goevery/seatcast/internal/auth"
	"github.com/goevery/seatcast/internal/broadcaster"
	"github.com/goevery/seatcast/internal/capacity"
	"github.com/goevery/seatcast/internal/collector"
	"github.com/goevery/seatcast/internal/dispatch"
	"github.com/goevery/seatcast/internal/fanout"
	"github.com/goevery/seatcast/internal/ierr"
	"github.com/goevery/seatcast/internal/mail"
	"github.com/goevery/seatcast/internal/perf"
	"github.com/goevery/seatcast/internal/persistence/memory"
	"github.com/goevery/seatcast/internal/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, address string, subject string, body string) error {
	return m.Called(ctx, address, subject, body).Error(0)
}

type fixture struct {
	engine     *Engine
	store      *memory.Store
	history    *memory.EventLog
	dispatcher *dispatch.Context
	sender     *MockSender
	monitor    *perf.Monitor
}

func newFixture(t *testing.T, kind strategy.Kind) fixture {
	t.Helper()

	logger := zap.NewNop()
	store := memory.NewStore()
	history := memory.NewEventLog()
	sender := new(MockSender)
	monitor := perf.NewMonitor(logger, 0)

	dispatcher := dispatch.New(logger, kind)
	require.NoError(t, dispatcher.Init(broadcaster.NewQueueTransport()))

	tracker := capacity.NewTracker(logger, store)

	e := New(
		logger,
		tracker,
		dispatcher,
		collector.New(logger, store),
		fanout.New(logger, dispatcher, sender, 2),
		history,
		monitor,
	)

	return fixture{e, store, history, dispatcher, sender, monitor}
}

func (f fixture) connect(t *testing.T, userId string, role auth.Role) *broadcaster.Connection {
	t.Helper()

	connection := broadcaster.NewConnection(16)
	require.NoError(t, connection.SetAuthentication(auth.Authentication{Subject: userId, Role: role}))
	require.NoError(t, f.dispatcher.OnConnect(context.Background(), connection))

	return connection
}

func (f fixture) fullCourse(t *testing.T, courseId int64, title string, maxCapacity int) {
	t.Helper()

	f.store.PutCourse(courseId, title, maxCapacity)
	for i := range maxCapacity {
		_, err := f.store.Book(courseId, int64(1000+i))
		require.NoError(t, err)
	}
}

func TestApplyBookingChange_ThresholdCrossing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, strategy.KindThresholdRoleFilter)
	f.fullCourse(t, 1, "Crossfit", 10)

	admin := f.connect(t, "1", auth.RoleAdmin)
	customer := f.connect(t, "2", auth.RoleInterestedCustomer)

	change, err := f.engine.ApplyBookingChange(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, capacity.Transition{CourseId: 1, OldFreeSpots: 0, NewFreeSpots: 1}, change.Transition)
	assert.Equal(t, 9, change.Snapshot.BookedCount)
	assert.Equal(t, strategy.Report{Delivered: 2}, change.Report)
	assert.Len(t, admin.Outbound(), 1)
	assert.Len(t, customer.Outbound(), 1)

	change, err = f.engine.ApplyBookingChange(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, capacity.Transition{CourseId: 1, OldFreeSpots: 1, NewFreeSpots: 2}, change.Transition)
	assert.Len(t, admin.Outbound(), 2)
	assert.Len(t, customer.Outbound(), 1)

	entries, err := f.engine.History(ctx, 1, "")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	delivered := <-customer.Outbound()
	assert.Equal(t, delivered.Id, entries[1].Event.Id)
	assert.True(t, delivered.Timestamp.Equal(entries[1].Event.Timestamp))
	assert.Equal(t, int64(2), f.monitor.Snapshot()["applyBookingChange"].Count)
}

func TestApplyBookingChange_UnknownCourse(t *testing.T) {
	f := newFixture(t, strategy.KindBroadcastAll)
	connection := f.connect(t, "1", auth.RoleAdmin)

	_, err := f.engine.ApplyBookingChange(context.Background(), 99, 1)

	assert.ErrorIs(t, err, capacity.ErrCourseNotFound)
	assert.Equal(t, ierr.ErrorCodeNotFound, ierr.CodeOf(err))
	assert.Empty(t, connection.Outbound())
}

func TestDeleteCourse_NotifiesAffectedRecipients(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, strategy.KindPubSub)
	f.store.PutCourse(42, "Crossfit", 10)
	f.store.PutUser(7, "seven@example.com")
	f.store.PutUser(9, "nine@example.com")
	_, err := f.store.Book(42, 7)
	require.NoError(t, err)
	_, err = f.store.Book(42, 9)
	require.NoError(t, err)

	_, err = f.engine.ApplyBookingChange(ctx, 42, 0)
	require.NoError(t, err)

	seven := f.connect(t, "7", auth.RoleCustomer)
	bystander := f.connect(t, "8", auth.RoleCustomer)

	f.sender.On("Send", mock.Anything, mock.Anything, "Cancelled: Crossfit", mock.Anything).Return(nil)

	deletion, err := f.engine.DeleteCourse(ctx, 42)
	require.NoError(t, err)

	assert.True(t, deletion.Result.Deleted)
	assert.Equal(t, int64(42), deletion.Result.DeletedCourseId)
	recipientIds := []int64{}
	for _, recipient := range deletion.Result.Recipients {
		recipientIds = append(recipientIds, recipient.RecipientId)
	}
	assert.Equal(t, []int64{7, 9}, recipientIds)
	assert.Equal(t, 2, deletion.Fanout.Mailed)

	require.Len(t, seven.Outbound(), 1)
	event := <-seven.Outbound()
	assert.Equal(t, broadcaster.EventTypeCourseDeleted, event.Type)
	assert.Equal(t, "Crossfit", event.CourseTitle)
	assert.Empty(t, bystander.Outbound())

	_, ok := f.engine.tracker.Get(42)
	assert.False(t, ok)

	again, err := f.engine.DeleteCourse(ctx, 42)
	require.NoError(t, err)
	assert.False(t, again.Result.Deleted)
	assert.Empty(t, again.Result.Recipients)
	f.sender.AssertNumberOfCalls(t, "Send", 2)
}

func TestDeleteCourse_UnknownCourseDispatchesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, strategy.KindBroadcastAll)
	connection := f.connect(t, "1", auth.RoleAdmin)

	deletion, err := f.engine.DeleteCourse(ctx, 404)

	require.NoError(t, err)
	assert.Equal(t, Deletion{}, deletion)
	assert.Empty(t, connection.Outbound())
	f.sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	entries, err := f.engine.History(ctx, 404, "")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

type failingBeginner struct{}

func (failingBeginner) BeginTx(ctx context.Context) (collector.Tx, error) {
	return nil, errors.New("database is down")
}

func TestDeleteCourse_AbortDispatchesNothing(t *testing.T) {
	logger := zap.NewNop()
	dispatcher := dispatch.New(logger, strategy.KindBroadcastAll)
	require.NoError(t, dispatcher.Init(broadcaster.NewQueueTransport()))
	sender := new(MockSender)
	store := memory.NewStore()

	e := New(
		logger,
		capacity.NewTracker(logger, store),
		dispatcher,
		collector.New(logger, failingBeginner{}),
		fanout.New(logger, dispatcher, sender, 1),
		memory.NewEventLog(),
		nil,
	)

	connection := broadcaster.NewConnection(4)
	require.NoError(t, dispatcher.OnConnect(context.Background(), connection))

	_, err := e.DeleteCourse(context.Background(), 42)

	assert.Equal(t, ierr.ErrorCodeAborted, ierr.CodeOf(err))
	assert.Empty(t, connection.Outbound())
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPublish(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, strategy.KindMediator)
	connection := f.connect(t, "1", auth.RoleCustomer)

	report, err := f.engine.Publish(ctx, 5, "Room changed to B2", map[string]string{"room": "B2"})
	require.NoError(t, err)
	assert.Equal(t, strategy.Report{Delivered: 1}, report)

	event := <-connection.Outbound()
	assert.Equal(t, broadcaster.EventTypeAnnouncement, event.Type)
	assert.Equal(t, broadcaster.TopicCourseUpdates, event.Topic)

	_, err = f.engine.Publish(ctx, 5, "", nil)
	assert.Equal(t, ierr.ErrorCodeInvalidArgument, ierr.CodeOf(err))

	entries, err := f.engine.History(ctx, 5, "")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, event.Id, entries[0].Event.Id)
}

// cancelOnCommit cancels the caller's context right after the delete commits.
type cancelOnCommit struct {
	collector.Tx

	cancel context.CancelFunc
}

func (c cancelOnCommit) Commit(ctx context.Context) error {
	err := c.Tx.Commit(ctx)
	c.cancel()

	return err
}

type cancelOnCommitBeginner struct {
	store  *memory.Store
	cancel context.CancelFunc
}

func (b cancelOnCommitBeginner) BeginTx(ctx context.Context) (collector.Tx, error) {
	tx, err := b.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}

	return cancelOnCommit{tx, b.cancel}, nil
}

func TestDeleteCourse_DeliversAfterCallerCancels(t *testing.T) {
	logger := zap.NewNop()
	store := memory.NewStore()
	store.PutCourse(42, "Crossfit", 10)
	store.PutUser(7, "seven@example.com")
	_, err := store.Book(42, 7)
	require.NoError(t, err)

	dispatcher := dispatch.New(logger, strategy.KindBroadcastAll)
	require.NoError(t, dispatcher.Init(broadcaster.NewQueueTransport()))

	sender := new(MockSender)
	sender.On("Send", mock.Anything, "seven@example.com", "Cancelled: Crossfit", mock.Anything).Return(nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := New(
		logger,
		capacity.NewTracker(logger, store),
		dispatcher,
		collector.New(logger, cancelOnCommitBeginner{store, cancel}),
		fanout.New(logger, dispatcher, mail.NewRateLimitedSender(sender, 1, 1), 1),
		memory.NewEventLog(),
		nil,
	)

	connection := broadcaster.NewConnection(4)
	require.NoError(t, connection.SetAuthentication(auth.Authentication{Subject: "7", Role: auth.RoleCustomer}))
	require.NoError(t, dispatcher.OnConnect(context.Background(), connection))

	deletion, err := e.DeleteCourse(ctx, 42)
	require.NoError(t, err)
	require.Error(t, ctx.Err())

	assert.True(t, deletion.Result.Deleted)
	assert.Equal(t, 1, deletion.Fanout.Pushed)
	assert.Equal(t, 0, deletion.Fanout.PushFailed)
	assert.Equal(t, 1, deletion.Fanout.Mailed)
	assert.Equal(t, 0, deletion.Fanout.MailFailed)
	assert.Len(t, connection.Outbound(), 1)
	sender.AssertExpectations(t)
}

func TestDeleteCourse_EvictsBeforeLaterBookingChanges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, strategy.KindBroadcastAll)
	f.store.PutCourse(42, "Crossfit", 10)

	_, err := f.engine.ApplyBookingChange(ctx, 42, 0)
	require.NoError(t, err)

	admin := f.connect(t, "1", auth.RoleAdmin)

	_, err = f.engine.DeleteCourse(ctx, 42)
	require.NoError(t, err)
	for len(admin.Outbound()) > 0 {
		<-admin.Outbound()
	}

	_, err = f.engine.ApplyBookingChange(ctx, 42, 1)
	assert.Equal(t, ierr.ErrorCodeNotFound, ierr.CodeOf(err))
	assert.Empty(t, admin.Outbound())
}
