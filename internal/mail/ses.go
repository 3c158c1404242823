package mail

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESClient is the subset of the SES API used here.
type SESClient interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SESSender struct {
	client SESClient
	from   string
}

func NewSESSender(ctx context.Context, cfg Config) (*SESSender, error) {
	if cfg.From == "" {
		return nil, fmt.Errorf("%w: sender address is required", ErrInvalidConfig)
	}

	region := cfg.SESRegion
	if region == "" {
		region = "us-east-1"
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("%w: load aws config: %w", ErrInvalidConfig, err)
	}

	client := ses.NewFromConfig(awsConfig, func(o *ses.Options) {
		o.RetryMaxAttempts = 3
	})

	return NewSESSenderWithClient(client, cfg.From), nil
}

func NewSESSenderWithClient(client SESClient, from string) *SESSender {
	return &SESSender{
		client: client,
		from:   from,
	}
}

func (s *SESSender) Send(ctx context.Context, address string, subject string, body string) error {
	err := validate(address, subject)
	if err != nil {
		return err
	}

	_, err = s.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{address},
		},
		Source: aws.String(s.from),
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
	})
	if err != nil {
		return errors.Join(ErrSendFailed, err)
	}

	return nil
}
