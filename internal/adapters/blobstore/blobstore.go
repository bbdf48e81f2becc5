// Package blobstore implements BlobStore (spec.md §4.6) over S3 and
// S3-compatible services (MinIO). Grounded on
// internal/objectstore/s3.go's LoadDefaultConfig + static-credentials +
// custom-endpoint/path-style setup, trimmed to the single Get operation
// the capabilities.BlobStore port needs.
package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// Config configures Store construction.
type Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// Store implements capabilities.BlobStore against an S3-compatible bucket.
type Store struct {
	client *s3.Client
	bucket string
}

// New builds a Store from cfg, following s3.go's LoadDefaultConfig +
// static-credentials + custom-endpoint pattern.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("blobstore: bucket is required")
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("blobstore: load aws config: %w", err)
	}
	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(cfg.Endpoint) })
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}
	return &Store{client: s3.NewFromConfig(awsCfg, s3Opts...), bucket: cfg.Bucket}, nil
}

// Get fetches the full object at key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchKey" {
			return nil, fmt.Errorf("blobstore: key %q not found: %w", key, err)
		}
		return nil, fmt.Errorf("blobstore: get %q: %w", key, err)
	}
	defer out.Body.Close()
	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, out.Body); err != nil {
		return nil, fmt.Errorf("blobstore: read %q: %w", key, err)
	}
	return buf.Bytes(), nil
}
