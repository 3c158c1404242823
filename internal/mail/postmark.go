package mail

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrz1836/postmark"
)

type PostmarkSender struct {
	client *postmark.Client
	from   string
}

func NewPostmarkSender(config Config) (*PostmarkSender, error) {
	if config.PostmarkServerToken == "" {
		return nil, fmt.Errorf("%w: postmark server token is required", ErrInvalidConfig)
	}
	if config.PostmarkAccountToken == "" {
		return nil, fmt.Errorf("%w: postmark account token is required", ErrInvalidConfig)
	}
	if config.From == "" {
		return nil, fmt.Errorf("%w: sender address is required", ErrInvalidConfig)
	}

	return &PostmarkSender{
		client: postmark.NewClient(config.PostmarkServerToken, config.PostmarkAccountToken),
		from:   config.From,
	}, nil
}

func (s *PostmarkSender) Send(ctx context.Context, address string, subject string, body string) error {
	err := validate(address, subject)
	if err != nil {
		return err
	}

	response, err := s.client.SendEmail(ctx, postmark.Email{
		From:     s.from,
		To:       address,
		Subject:  subject,
		Tag:      "course-notification",
		TextBody: body,
	})
	if err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	if response.ErrorCode > 0 {
		return errors.Join(
			ErrSendFailed,
			fmt.Errorf("postmark error: %d - %s", response.ErrorCode, response.Message),
		)
	}

	return nil
}
