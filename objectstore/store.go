// Package objectstore keeps blobs in an S3 compatible bucket.
// It works with AWS S3, MinIO, Cloudflare R2 and similar services.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sagarc03/burndrop"
)

// Config holds the bucket location and credentials.
type Config struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"` // optional, for S3 compatible services
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	// Prefix is prepended to every blob path, e.g. "burndrop/".
	Prefix string `mapstructure:"prefix"`
	// CreateBucket creates the bucket on startup when it is missing.
	CreateBucket bool `mapstructure:"create_bucket"`
}

// Store implements burndrop.BlobStorage on S3.
type Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// New builds the S3 client and checks the bucket is reachable.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("objectstore: bucket is required")
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("objectstore: load aws config: %w", err)
	}

	var client *s3.Client
	if cfg.Endpoint != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
			// Many S3 compatible services reject the default trailing checksums.
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
			o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}

	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}

	store := &Store{client: client, bucket: cfg.Bucket, prefix: prefix}
	if err := store.ensureBucket(ctx, cfg.CreateBucket); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) ensureBucket(ctx context.Context, create bool) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err == nil {
		return nil
	}
	if !create {
		return fmt.Errorf("objectstore: bucket %q: %w", s.bucket, err)
	}

	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("objectstore: bucket %q does not exist and could not be created: %w", s.bucket, err)
	}

	slog.Info("created S3 bucket", "bucket", s.bucket)
	return nil
}

func (s *Store) key(path string) (*string, error) {
	if !burndrop.IsValidBlobPath(path) {
		return nil, fmt.Errorf("blob path %s: %w", path, burndrop.ErrInvalidInput)
	}
	return aws.String(s.prefix + path), nil
}

// Write uploads content. S3 makes the object visible only once the upload
// completes, so partial writes are never observable.
func (s *Store) Write(ctx context.Context, path string, content io.Reader) (burndrop.SaveResult, error) {
	key, err := s.key(path)
	if err != nil {
		return burndrop.SaveResult{}, err
	}

	// PutObject needs a seekable body of known length to sign.
	body, size, cleanup, err := spool(content)
	if err != nil {
		return burndrop.SaveResult{}, fmt.Errorf("write blob: %w", err)
	}
	defer cleanup()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           key,
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		return burndrop.SaveResult{}, fmt.Errorf("write blob: upload to S3: %w", err)
	}

	return burndrop.SaveResult{BytesWritten: size}, nil
}

func (s *Store) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	key, err := s.key(path)
	if err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    key,
	})
	if err != nil {
		if isNotFound(err) {
			return nil, burndrop.ErrNotFound
		}
		return nil, fmt.Errorf("get blob: %w", err)
	}
	return out.Body, nil
}

// Delete removes the object. S3 deletes are idempotent, so the object is
// checked with HeadObject first to report burndrop.ErrNotFound like the other stores.
func (s *Store) Delete(ctx context.Context, path string) error {
	key, err := s.key(path)
	if err != nil {
		return err
	}

	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    key,
	})
	if err != nil {
		if isNotFound(err) {
			return burndrop.ErrNotFound
		}
		return fmt.Errorf("delete blob: head: %w", err)
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    key,
	})
	if err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}

	var respErr interface{ HTTPStatusCode() int }
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}
