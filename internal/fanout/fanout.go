package fanout

import (
	"context"
	"fmt"

	"github.com/goevery/seatcast/internal/broadcaster"
	"github.com/goevery/seatcast/internal/collector"
	"github.com/goevery/seatcast/internal/mail"
	"github.com/goevery/seatcast/internal/strategy"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// source names fan-out deliveries for mediated strategies.
const source = "fanout"

const DefaultConcurrency = 8

type Channel string

const (
	ChannelLive Channel = "live"
	ChannelMail Channel = "mail"
)

// Distributor is the live-push side, usually a *dispatch.Context.
type Distributor interface {
	DistributeFrom(ctx context.Context, source string, event broadcaster.Event) strategy.Report
}

type RecipientError struct {
	RecipientId int64
	Channel     Channel
	Err         error
}

func (e RecipientError) Error() string {
	return fmt.Sprintf("%s delivery to recipient %d: %v", e.Channel, e.RecipientId, e.Err)
}

func (e RecipientError) Unwrap() error {
	return e.Err
}

type Result struct {
	Pushed     int
	PushFailed int
	Mailed     int
	MailFailed int
	// Err combines every RecipientError of the call.
	Err error
}

type Fanout struct {
	logger      *zap.Logger
	distributor Distributor
	sender      mail.Sender
	concurrency int
}

func New(logger *zap.Logger, distributor Distributor, sender mail.Sender, concurrency int) *Fanout {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	return &Fanout{
		logger:      logger,
		distributor: distributor,
		sender:      sender,
		concurrency: concurrency,
	}
}

// Deliver pushes the event to every recipient's room and mails every recipient
// with a contact address. Failures are isolated per recipient and channel and
// never stop the other deliveries. Deliver returns once all sends finished.
func (f *Fanout) Deliver(ctx context.Context, recipients []collector.Recipient, event broadcaster.Event) Result {
	var result Result
	var errs []error

	for _, recipient := range recipients {
		err := f.push(ctx, recipient, event)
		if err != nil {
			result.PushFailed++
			errs = append(errs, err)

			f.logger.Warn("live delivery failed",
				zap.Int64("recipientId", recipient.RecipientId),
				zap.String("eventId", event.Id),
				zap.Error(err))

			continue
		}

		result.Pushed++
	}

	mailErrs := f.mail(ctx, recipients, event)
	for _, err := range mailErrs {
		if err == nil {
			result.Mailed++
			continue
		}

		result.MailFailed++
		errs = append(errs, err)
	}

	result.Err = multierr.Combine(errs...)

	f.logger.Info("notification fan-out finished",
		zap.String("eventId", event.Id),
		zap.Int64("courseId", event.CourseId),
		zap.Int("recipients", len(recipients)),
		zap.Int("pushFailed", result.PushFailed),
		zap.Int("mailed", result.Mailed),
		zap.Int("mailFailed", result.MailFailed))

	return result
}

func (f *Fanout) push(ctx context.Context, recipient collector.Recipient, event broadcaster.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = RecipientError{recipient.RecipientId, ChannelLive, fmt.Errorf("panic: %v", r)}
		}
	}()

	report := f.distributor.DistributeFrom(ctx, source, event.ForRoom(broadcaster.RecipientRoom(recipient.RecipientId)))
	if report.Failed > 0 {
		return RecipientError{recipient.RecipientId, ChannelLive, fmt.Errorf("%d of %d connections failed", report.Failed, report.Failed+report.Delivered)}
	}

	return nil
}

// mail returns one slot per recipient with a contact address, nil on success.
func (f *Fanout) mail(ctx context.Context, recipients []collector.Recipient, event broadcaster.Event) []error {
	subject, body := compose(event)

	var mailable []collector.Recipient
	for _, recipient := range recipients {
		if recipient.ContactAddress != "" {
			mailable = append(mailable, recipient)
		}
	}

	errs := make([]error, len(mailable))

	var group errgroup.Group
	group.SetLimit(f.concurrency)

	for i, recipient := range mailable {
		group.Go(func() error {
			errs[i] = f.send(ctx, recipient, subject, body)
			if errs[i] != nil {
				f.logger.Warn("mail delivery failed",
					zap.Int64("recipientId", recipient.RecipientId),
					zap.String("eventId", event.Id),
					zap.Error(errs[i]))
			}

			// failures stay in errs so the group never short-circuits
			return nil
		})
	}

	_ = group.Wait()

	return errs
}

func (f *Fanout) send(ctx context.Context, recipient collector.Recipient, subject string, body string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = RecipientError{recipient.RecipientId, ChannelMail, fmt.Errorf("panic: %v", r)}
		}
	}()

	err = f.sender.Send(ctx, recipient.ContactAddress, subject, body)
	if err != nil {
		return RecipientError{recipient.RecipientId, ChannelMail, err}
	}

	return nil
}

func compose(event broadcaster.Event) (string, string) {
	title := event.CourseTitle
	if title == "" {
		title = fmt.Sprintf("course %d", event.CourseId)
	}

	switch event.Type {
	case broadcaster.EventTypeCourseDeleted:
		return fmt.Sprintf("Cancelled: %s", title), event.Message
	case broadcaster.EventTypeCapacityChanged:
		return fmt.Sprintf("Seats available: %s", title), event.Message
	default:
		return fmt.Sprintf("Update: %s", title), event.Message
	}
}
