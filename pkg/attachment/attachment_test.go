package attachment_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/attachment"
)

type stubS3 struct {
	objects map[string]string
	err     error
	lastKey string
}

func (s *stubS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	s.lastKey = aws.ToString(params.Key)
	if s.err != nil {
		return nil, s.err
	}
	content, ok := s.objects[s.lastKey]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchKey", Message: "the specified key does not exist"}
	}
	return &s3.GetObjectOutput{
		Body:        io.NopCloser(strings.NewReader(content)),
		ContentType: aws.String("application/pdf"),
	}, nil
}

func TestS3Fetcher_Fetch(t *testing.T) {
	t.Parallel()

	client := &stubS3{objects: map[string]string{"invoices/2026/inv-1.pdf": "pdf-bytes"}}
	f := attachment.NewS3FetcherWithClient(client, attachment.S3Config{Bucket: "attachments"})

	content, contentType, err := f.Fetch(context.Background(), "/invoices/2026/inv-1.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("pdf-bytes"), content)
	assert.Equal(t, "application/pdf", contentType)
	assert.Equal(t, "invoices/2026/inv-1.pdf", client.lastKey, "leading slash is stripped before lookup")
}

func TestS3Fetcher_FetchInvalidKey(t *testing.T) {
	t.Parallel()

	client := &stubS3{}
	f := attachment.NewS3FetcherWithClient(client, attachment.S3Config{Bucket: "attachments"})

	for _, key := range []string{"", "/", "../etc/passwd", "a/../b"} {
		_, _, err := f.Fetch(context.Background(), key)
		require.ErrorIs(t, err, attachment.ErrNotFound, "key %q", key)
	}
	assert.Empty(t, client.lastKey, "invalid keys never reach the backend")
}

func TestS3Fetcher_FetchMissingObject(t *testing.T) {
	t.Parallel()

	f := attachment.NewS3FetcherWithClient(&stubS3{objects: map[string]string{}}, attachment.S3Config{Bucket: "attachments"})

	_, _, err := f.Fetch(context.Background(), "gone.pdf")
	assert.ErrorIs(t, err, attachment.ErrNotFound)
}

func TestS3Fetcher_FetchBackendError(t *testing.T) {
	t.Parallel()

	f := attachment.NewS3FetcherWithClient(
		&stubS3{err: errors.New("connection reset")},
		attachment.S3Config{Bucket: "attachments"},
	)

	_, _, err := f.Fetch(context.Background(), "inv-1.pdf")
	require.Error(t, err)
	assert.NotErrorIs(t, err, attachment.ErrNotFound, "transport errors are not treated as missing objects")
}

func TestS3Fetcher_FetchSizeLimit(t *testing.T) {
	t.Parallel()

	client := &stubS3{objects: map[string]string{"big.pdf": strings.Repeat("x", 64), "ok.pdf": strings.Repeat("x", 32)}}
	f := attachment.NewS3FetcherWithClient(client, attachment.S3Config{Bucket: "attachments", MaxSize: 32})

	_, _, err := f.Fetch(context.Background(), "big.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")

	content, _, err := f.Fetch(context.Background(), "ok.pdf")
	require.NoError(t, err)
	assert.Len(t, content, 32)
}
