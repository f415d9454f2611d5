package worker

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"image-pipeline/internal/config"
)

const outputContentType = "image/jpeg"

// Sink persists encoded output bytes under a task-derived filename and
// returns the stored location.
type Sink interface {
	Write(ctx context.Context, filename string, body []byte) (string, error)
}

// LocalSink writes outputs into a flat directory on disk.
type LocalSink struct {
	baseDir string
}

// NewLocalSink creates the output directory if absent. Run once at process
// start; the write path assumes the directory exists.
func NewLocalSink(baseDir string) (*LocalSink, error) {
	if baseDir == "" {
		baseDir = "./output"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &LocalSink{baseDir: baseDir}, nil
}

func (l *LocalSink) Write(_ context.Context, filename string, body []byte) (string, error) {
	path := filepath.Join(l.baseDir, filepath.Base(filename))
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return path, nil
}

// S3Sink uploads outputs to an S3 bucket instead of local disk.
type S3Sink struct {
	client *s3.Client
	bucket string
}

// NewS3Sink builds an S3-backed sink, honoring a custom endpoint for
// MinIO-style deployments.
func NewS3Sink(ctx context.Context, cfg config.Config) (*S3Sink, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
	}
	if cfg.S3Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{
					URL:               cfg.S3Endpoint,
					HostnameImmutable: cfg.S3PathStyle,
					SigningRegion:     cfg.S3Region,
					Source:            aws.EndpointSourceCustom,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.S3PathStyle
	})
	return &S3Sink{client: client, bucket: cfg.S3Bucket}, nil
}

func (s *S3Sink) Write(ctx context.Context, filename string, body []byte) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(filename),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(outputContentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, filename), nil
}

// NewSink picks S3 when a bucket is configured, local disk otherwise.
func NewSink(ctx context.Context, cfg config.Config) (Sink, error) {
	if cfg.S3Bucket != "" {
		return NewS3Sink(ctx, cfg)
	}
	return NewLocalSink(cfg.OutputDir)
}
