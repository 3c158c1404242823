package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

var (
	ErrInvalidConfig  = errors.New("invalid mail configuration")
	ErrInvalidMessage = errors.New("invalid mail message")
	ErrSendFailed     = errors.New("failed to send mail")
)

const (
	ProviderLog      = "log"
	ProviderPostmark = "postmark"
	ProviderSES      = "ses"
)

// Sender is fire-and-forget: a nil error only means the provider accepted the
// message.
type Sender interface {
	Send(ctx context.Context, address string, subject string, body string) error
}

type Config struct {
	Provider             string
	From                 string
	PostmarkServerToken  string
	PostmarkAccountToken string
	SESRegion            string
}

// NewSender builds the sender for the configured provider.
func NewSender(ctx context.Context, logger *zap.Logger, config Config) (Sender, error) {
	switch strings.ToLower(strings.TrimSpace(config.Provider)) {
	case "", ProviderLog:
		return NewLogSender(logger), nil
	case ProviderPostmark:
		return NewPostmarkSender(config)
	case ProviderSES:
		return NewSESSender(ctx, config)
	default:
		return nil, fmt.Errorf("%w: unsupported provider %q", ErrInvalidConfig, config.Provider)
	}
}

func validate(address string, subject string) error {
	if strings.TrimSpace(address) == "" {
		return fmt.Errorf("%w: address is required", ErrInvalidMessage)
	}
	if strings.TrimSpace(subject) == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidMessage)
	}

	return nil
}

// LogSender only logs, for development.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger}
}

func (s *LogSender) Send(ctx context.Context, address string, subject string, body string) error {
	err := validate(address, subject)
	if err != nil {
		return err
	}

	s.logger.Info("mail sent",
		zap.String("address", address),
		zap.String("subject", subject))

	return nil
}
