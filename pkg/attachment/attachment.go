// Package attachment resolves stored attachment references into bytes at
// send time. Email payloads may carry either inline content or a storage
// key; the dispatcher uses a Fetcher to hydrate keyed attachments before
// handing the payload to a provider adapter.
package attachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// ErrNotFound is returned when a storage key does not resolve to an object.
var ErrNotFound = errors.New("attachment not found")

// Fetcher loads attachment content by storage key. ContentType may be
// empty when the backend does not track it.
type Fetcher interface {
	Fetch(ctx context.Context, key string) (content []byte, contentType string, err error)
}

// S3Client is the subset of the S3 API the fetcher uses.
type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config contains settings for the S3-backed fetcher. Endpoint and
// ForcePathStyle support S3-compatible services like MinIO.
type S3Config struct {
	Bucket         string `env:"ATTACHMENT_S3_BUCKET,required"`
	Region         string `env:"ATTACHMENT_S3_REGION,required"`
	AccessKeyID    string `env:"ATTACHMENT_S3_ACCESS_KEY_ID"`
	SecretKey      string `env:"ATTACHMENT_S3_SECRET_KEY"`
	Endpoint       string `env:"ATTACHMENT_S3_ENDPOINT"`
	ForcePathStyle bool   `env:"ATTACHMENT_S3_FORCE_PATH_STYLE"`
	// MaxSize caps a single attachment; most email vendors reject
	// payloads above 10MB total.
	MaxSize int64 `env:"ATTACHMENT_MAX_SIZE" envDefault:"10485760"`
}

// S3Fetcher implements Fetcher over an S3 bucket.
type S3Fetcher struct {
	client  S3Client
	bucket  string
	maxSize int64
}

// NewS3Fetcher creates an S3-backed attachment fetcher.
func NewS3Fetcher(ctx context.Context, cfg S3Config) (*S3Fetcher, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, fmt.Errorf("attachment: bucket and region are required")
	}

	awsOptions := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
		awsOptions = append(awsOptions,
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretKey, "",
			)),
		)
	}

	awsConfig, err := awsconfig.LoadDefaultConfig(ctx, awsOptions...)
	if err != nil {
		return nil, fmt.Errorf("attachment: load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return NewS3FetcherWithClient(client, cfg), nil
}

// NewS3FetcherWithClient creates the fetcher with a pre-configured client,
// for tests and custom wiring.
func NewS3FetcherWithClient(client S3Client, cfg S3Config) *S3Fetcher {
	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = 10 << 20
	}
	return &S3Fetcher{client: client, bucket: cfg.Bucket, maxSize: maxSize}
}

// Fetch downloads the object at the given key.
func (f *S3Fetcher) Fetch(ctx context.Context, key string) ([]byte, string, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" || strings.Contains(key, "..") {
		return nil, "", fmt.Errorf("invalid attachment key %q: %w", key, ErrNotFound)
	}

	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NoSuchKey" || apiErr.ErrorCode() == "NotFound") {
			return nil, "", fmt.Errorf("attachment %q: %w", key, ErrNotFound)
		}
		return nil, "", fmt.Errorf("fetch attachment %q: %w", key, err)
	}
	defer out.Body.Close()

	content, err := io.ReadAll(io.LimitReader(out.Body, f.maxSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("read attachment %q: %w", key, err)
	}
	if int64(len(content)) > f.maxSize {
		return nil, "", fmt.Errorf("attachment %q exceeds %d bytes", key, f.maxSize)
	}

	contentType := ""
	if out.ContentType != nil {
		contentType = *out.ContentType
	}
	return content, contentType, nil
}
