package archive

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/hifzlab/coach-engine/internal/metrics"
)

// S3Archive uploads processed recordings to an S3-compatible bucket and
// removes the local file once the upload succeeds. Objects are keyed by date:
// 2006/01/02/<name>.
type S3Archive struct {
	client *s3.Client
	bucket string
	log    zerolog.Logger
}

func NewS3(ctx context.Context, opts Options) (*S3Archive, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 archive requires a bucket")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Archive{
		client: client,
		bucket: opts.Bucket,
		log:    opts.Log.With().Str("component", "archive").Str("backend", "s3").Logger(),
	}, nil
}

// Check verifies the bucket is reachable with the configured credentials.
func (a *S3Archive) Check(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)})
	if err != nil {
		return fmt.Errorf("head bucket %s: %w", a.bucket, err)
	}
	return nil
}

func (a *S3Archive) Archive(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read recording: %w", err)
	}

	key := time.Now().UTC().Format("2006/01/02") + "/" + filepath.Base(path)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentTypeFor(path)),
	})
	if err != nil {
		return "", fmt.Errorf("put s3://%s/%s: %w", a.bucket, key, err)
	}

	if err := os.Remove(path); err != nil {
		a.log.Warn().Err(err).Str("path", path).Msg("uploaded ok but local removal failed")
	}

	metrics.ArchivedFilesTotal.WithLabelValues("s3").Inc()
	location := fmt.Sprintf("s3://%s/%s", a.bucket, key)
	a.log.Debug().Str("src", path).Str("dest", location).Msg("recording archived")
	return location, nil
}

func contentTypeFor(path string) string {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "mp3", "mpeg", "mpga":
		return "audio/mpeg"
	case "mp4", "m4a":
		return "audio/mp4"
	case "wav":
		return "audio/wav"
	case "webm":
		return "audio/webm"
	case "ogg":
		return "audio/ogg"
	case "flac":
		return "audio/flac"
	default:
		return "application/octet-stream"
	}
}
