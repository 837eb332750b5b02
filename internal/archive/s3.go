// Package archive stores a copy of each rendered video in S3 before it is
// published, so the media outlives the render service's temporary URL.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jonathan/newscaster/internal/logging"
	"github.com/sirupsen/logrus"
)

// ArchiveError is returned when the media copy cannot be written.
type ArchiveError struct {
	Key   string
	Cause error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("archive %s failed: %v", e.Key, e.Cause)
}

func (e *ArchiveError) Unwrap() error {
	return e.Cause
}

// S3Config holds configuration for the archive bucket.
type S3Config struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string // S3-compatible storage such as MinIO
	AccessKey string // optional, default credential chain when empty
	SecretKey string
}

// PutObjectAPI is the slice of the S3 client the archiver uses.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver writes media objects to a bucket.
type S3Archiver struct {
	api    PutObjectAPI
	cfg    S3Config
	logger *logrus.Logger
}

// NewS3Archiver loads AWS configuration and creates an archiver.
func NewS3Archiver(ctx context.Context, cfg S3Config, logger *logrus.Logger) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return NewWithClient(s3.NewFromConfig(awsCfg, s3Opts...), cfg, logger), nil
}

// NewWithClient creates an archiver around an existing S3 client.
func NewWithClient(api PutObjectAPI, cfg S3Config, logger *logrus.Logger) *S3Archiver {
	if logger == nil {
		logger = logging.Discard()
	}
	return &S3Archiver{api: api, cfg: cfg, logger: logger}
}

// Key returns the object key used for a run.
func (a *S3Archiver) Key(runID string) string {
	name := runID + ".mp4"
	if a.cfg.Prefix == "" {
		return name
	}
	return strings.TrimSuffix(a.cfg.Prefix, "/") + "/" + name
}

// Store uploads the media for runID and returns its s3:// location.
func (a *S3Archiver) Store(ctx context.Context, runID string, data []byte, contentType string) (string, error) {
	key := a.Key(runID)
	if contentType == "" {
		contentType = "video/mp4"
	}

	_, err := a.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", &ArchiveError{Key: key, Cause: err}
	}

	location := fmt.Sprintf("s3://%s/%s", a.cfg.Bucket, key)
	a.logger.WithFields(logging.Fields{
		"bucket": a.cfg.Bucket,
		"key":    key,
		"bytes":  len(data),
	}).Info("media archived")
	return location, nil
}
