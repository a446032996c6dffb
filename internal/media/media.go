// Package media stores post images in an S3-compatible bucket.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

var ErrDisabled = errors.New("media storage is not configured")

type Options struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

type putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Uploader struct {
	client putter
	opts   Options
}

// NewS3 builds an uploader. A custom endpoint (MinIO and friends) switches to path-style addressing.
func NewS3(ctx context.Context, opts Options) (*S3Uploader, error) {
	const op = "media.NewS3"

	if opts.Bucket == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrDisabled)
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Uploader{client: client, opts: opts}, nil
}

// Upload stores body under key and returns the public URL of the object.
func (u *S3Uploader) Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	const op = "media.Upload"

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.opts.Bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return u.ObjectURL(key), nil
}

func (u *S3Uploader) ObjectURL(key string) string {
	if u.opts.Endpoint != "" {
		return strings.TrimRight(u.opts.Endpoint, "/") + "/" + u.opts.Bucket + "/" + key
	}

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.opts.Bucket, u.opts.Region, key)
}

// Key lays objects out per owner and day, keeping the original extension.
func Key(owner, filename string, now time.Time) string {
	ext := strings.ToLower(path.Ext(filename))

	return fmt.Sprintf("posts/%s/%d/%02d/%02d/%s%s", owner, now.Year(), now.Month(), now.Day(), uuid.NewString(), ext)
}
