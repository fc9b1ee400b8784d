package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	jerrors "trade-journal/internal/errors"
)

// S3Config holds connection settings for an S3-compatible bucket.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	UsePathStyle    bool
	AccessKeyID     string
	SecretAccessKey string
}

// S3API is the subset of the S3 client the store uses.
type S3API interface {
	manager.UploadAPIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store keeps objects in an S3 bucket and addresses them with s3:// URLs.
type S3Store struct {
	client   S3API
	uploader *manager.Uploader
	bucket   string
	log      zerolog.Logger
}

// NewS3Store connects to the bucket. Static credentials are used when set,
// otherwise the default AWS credential chain.
func NewS3Store(ctx context.Context, cfg S3Config, logger zerolog.Logger) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return NewS3StoreWithClient(client, cfg.Bucket, logger), nil
}

// NewS3StoreWithClient wraps an existing client.
func NewS3StoreWithClient(client S3API, bucket string, logger zerolog.Logger) *S3Store {
	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		log:      logger.With().Str("component", "s3").Str("bucket", bucket).Logger(),
	}
}

// Put implements ObjectStore.
func (s *S3Store) Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("object key is required")
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   r,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	s.log.Debug().Str("key", key).Msg("Uploaded object")
	return s.url(key), nil
}

// Open implements ObjectStore.
func (s *S3Store) Open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	key, err := s.key(rawURL)
	if err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", jerrors.ErrObjectNotFound, rawURL)
		}
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return out.Body, nil
}

// Delete implements ObjectStore. S3 deletes are silent for missing keys,
// so existence is checked first.
func (s *S3Store) Delete(ctx context.Context, rawURL string) error {
	key, err := s.key(rawURL)
	if err != nil {
		return err
	}

	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return fmt.Errorf("%w: %s", jerrors.ErrObjectNotFound, rawURL)
		}
		return fmt.Errorf("failed to stat %s: %w", key, err)
	}

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}

	s.log.Debug().Str("key", key).Msg("Deleted object")
	return nil
}

func (s *S3Store) url(key string) string {
	return "s3://" + s.bucket + "/" + key
}

func (s *S3Store) key(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "s3" {
		return "", fmt.Errorf("not an s3 object url: %q", rawURL)
	}
	if u.Host != s.bucket {
		return "", fmt.Errorf("object %q is not in bucket %s", rawURL, s.bucket)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", fmt.Errorf("object url %q has no key", rawURL)
	}
	return key, nil
}
