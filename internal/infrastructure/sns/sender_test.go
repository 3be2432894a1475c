package sns

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/go-auth-nosql/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) Publish(ctx context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	args := m.Called(ctx, in)
	return &sns.PublishOutput{}, args.Error(0)
}

func TestAlert_PublishesToTopic(t *testing.T) {
	p := &mockPublisher{}
	p.On("Publish", mock.Anything, mock.MatchedBy(func(in *sns.PublishInput) bool {
		return aws.ToString(in.TopicArn) == "arn:topic" &&
			aws.ToString(in.Subject) == "outbox failure" &&
			aws.ToString(in.Message) == "message m1 failed"
	})).Return(nil)

	a := &alerter{client: p, topicARN: "arn:topic"}
	require.NoError(t, a.Alert(context.Background(), "outbox failure", "message m1 failed"))
	p.AssertExpectations(t)
}

func TestAlert_TruncatesSubject(t *testing.T) {
	p := &mockPublisher{}
	p.On("Publish", mock.Anything, mock.MatchedBy(func(in *sns.PublishInput) bool {
		return len(aws.ToString(in.Subject)) == 100
	})).Return(nil)

	a := &alerter{client: p, topicARN: "arn:topic"}
	require.NoError(t, a.Alert(context.Background(), strings.Repeat("s", 150), "m"))
	p.AssertExpectations(t)
}

func TestAlert_WrapsError(t *testing.T) {
	p := &mockPublisher{}
	p.On("Publish", mock.Anything, mock.Anything).Return(errors.New("throttled"))

	a := &alerter{client: p, topicARN: "arn:topic"}
	err := a.Alert(context.Background(), "s", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish alert")
}

func TestNewAlerter_RequiresTopic(t *testing.T) {
	_, err := NewAlerter(context.Background(), &config.Config{})
	require.Error(t, err)
}
