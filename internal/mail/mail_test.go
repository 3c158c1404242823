package mail

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockSESClient struct {
	mock.Mock
}

func (m *MockSESClient) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	args := m.Called(ctx, params)
	output, _ := args.Get(0).(*ses.SendEmailOutput)
	return output, args.Error(1)
}

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, address string, subject string, body string) error {
	return m.Called(ctx, address, subject, body).Error(0)
}

func TestNewSender(t *testing.T) {
	ctx := context.Background()

	sender, err := NewSender(ctx, zap.NewNop(), Config{})
	require.NoError(t, err)
	assert.IsType(t, &LogSender{}, sender)

	_, err = NewSender(ctx, zap.NewNop(), Config{Provider: "carrier-pigeon"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewSender(ctx, zap.NewNop(), Config{Provider: ProviderPostmark, From: "noreply@example.com"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewSender(ctx, zap.NewNop(), Config{Provider: ProviderSES})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	sender, err = NewSender(ctx, zap.NewNop(), Config{
		Provider:             ProviderPostmark,
		From:                 "noreply@example.com",
		PostmarkServerToken:  "server",
		PostmarkAccountToken: "account",
	})
	require.NoError(t, err)
	assert.IsType(t, &PostmarkSender{}, sender)
}

func TestLogSender_Validates(t *testing.T) {
	sender := NewLogSender(zap.NewNop())

	assert.NoError(t, sender.Send(context.Background(), "seven@example.com", "Course cancelled", "body"))
	assert.ErrorIs(t, sender.Send(context.Background(), " ", "Course cancelled", "body"), ErrInvalidMessage)
	assert.ErrorIs(t, sender.Send(context.Background(), "seven@example.com", "", "body"), ErrInvalidMessage)
}

func TestSESSender_Send(t *testing.T) {
	client := new(MockSESClient)
	client.On("SendEmail", mock.Anything, mock.MatchedBy(func(input *ses.SendEmailInput) bool {
		return aws.ToString(input.Source) == "noreply@example.com" &&
			input.Destination.ToAddresses[0] == "seven@example.com" &&
			aws.ToString(input.Message.Subject.Data) == "Course cancelled"
	})).Return(&ses.SendEmailOutput{}, nil).Once()

	sender := NewSESSenderWithClient(client, "noreply@example.com")

	require.NoError(t, sender.Send(context.Background(), "seven@example.com", "Course cancelled", "Crossfit was cancelled"))
	client.AssertExpectations(t)
}

func TestSESSender_SendFailure(t *testing.T) {
	failure := errors.New("throttled")
	client := new(MockSESClient)
	client.On("SendEmail", mock.Anything, mock.Anything).Return(nil, failure)

	err := NewSESSenderWithClient(client, "noreply@example.com").Send(context.Background(), "seven@example.com", "subject", "body")

	assert.ErrorIs(t, err, ErrSendFailed)
	assert.ErrorIs(t, err, failure)
}

func TestRateLimitedSender(t *testing.T) {
	next := new(MockSender)
	next.On("Send", mock.Anything, "seven@example.com", "subject", "body").Return(nil)

	sender := NewRateLimitedSender(next, 1, 1)

	require.NoError(t, sender.Send(context.Background(), "seven@example.com", "subject", "body"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := sender.Send(ctx, "seven@example.com", "subject", "body")
	assert.ErrorIs(t, err, ErrSendFailed)
	next.AssertNumberOfCalls(t, "Send", 1)
}
