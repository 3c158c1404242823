package mail

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitedSender keeps a sender under the provider's send rate. Send waits
// for a token and gives up when ctx is done.
type RateLimitedSender struct {
	next    Sender
	limiter *rate.Limiter
}

func NewRateLimitedSender(next Sender, perSecond float64, burst int) *RateLimitedSender {
	return &RateLimitedSender{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), max(burst, 1)),
	}
}

func (s *RateLimitedSender) Send(ctx context.Context, address string, subject string, body string) error {
	err := s.limiter.Wait(ctx)
	if err != nil {
		return fmt.Errorf("%w: rate limit: %w", ErrSendFailed, err)
	}

	return s.next.Send(ctx, address, subject, body)
}
