package s3infra

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/go-auth-nosql/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockObjects struct{ mock.Mock }

func (m *mockObjects) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, aws.ToString(in.Key))
	if out, _ := args.Get(0).(*s3.GetObjectOutput); out != nil {
		return out, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockObjects) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b, _ := io.ReadAll(in.Body)
	args := m.Called(ctx, aws.ToString(in.Key), string(b))
	return &s3.PutObjectOutput{}, args.Error(0)
}

func TestGet_ReturnsBody(t *testing.T) {
	m := &mockObjects{}
	m.On("GetObject", mock.Anything, "templates/invite.html").
		Return(&s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("<p>hi</p>"))}, nil)

	s := &Store{client: m, bucket: "b"}
	body, err := s.Get(context.Background(), "templates/invite.html")
	require.NoError(t, err)
	assert.Equal(t, "<p>hi</p>", body)
}

func TestGet_MissingKeyIsNotFound(t *testing.T) {
	m := &mockObjects{}
	m.On("GetObject", mock.Anything, "templates/x.html").Return(nil, &types.NoSuchKey{})

	s := &Store{client: m, bucket: "b"}
	_, err := s.Get(context.Background(), "templates/x.html")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestGet_OtherErrorIsNotNotFound(t *testing.T) {
	m := &mockObjects{}
	m.On("GetObject", mock.Anything, "k").Return(nil, errors.New("access denied"))

	s := &Store{client: m, bucket: "b"}
	_, err := s.Get(context.Background(), "k")
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrNotFound))
}

func TestPut_UploadsBody(t *testing.T) {
	m := &mockObjects{}
	m.On("PutObject", mock.Anything, "templates/invite.subject", "Join us").Return(nil)

	s := &Store{client: m, bucket: "b"}
	require.NoError(t, s.Put(context.Background(), "templates/invite.subject", "Join us", "text/plain"))
	m.AssertExpectations(t)
}
