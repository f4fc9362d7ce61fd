package sync

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// objectPutter is the subset of *s3.Client used by S3Destination.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Options configures an S3Destination.
type S3Options struct {
	Bucket string
	// Key is the object key. A "{date}" placeholder is replaced with the
	// UTC date of the upload (2006-01-02), giving one object per day.
	Key      string
	Region   string
	Endpoint string // non-empty enables path-style addressing (MinIO and similar)
}

// S3Destination writes JSONL data to an S3-compatible bucket.
type S3Destination struct {
	client objectPutter
	bucket string
	key    string
	now    func() time.Time
}

// NewS3Destination creates an S3 destination from the default AWS credential chain.
func NewS3Destination(ctx context.Context, opts S3Options) (*S3Destination, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3opts []func(*s3.Options)
	if opts.Endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		})
	}

	return newS3Destination(s3.NewFromConfig(cfg, s3opts...), opts.Bucket, opts.Key), nil
}

func newS3Destination(client objectPutter, bucket, key string) *S3Destination {
	if key == "" {
		key = "shingolive/events.jsonl"
	}
	return &S3Destination{client: client, bucket: bucket, key: key, now: time.Now}
}

func (d *S3Destination) String() string {
	return "s3://" + d.bucket + "/" + d.key
}

// objectKey returns the key for an upload made now.
func (d *S3Destination) objectKey() string {
	return strings.ReplaceAll(d.key, "{date}", d.now().UTC().Format("2006-01-02"))
}

// Write uploads data to S3 as the configured object key.
func (d *S3Destination) Write(ctx context.Context, data []byte) error {
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(d.objectKey()),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}
	return nil
}
