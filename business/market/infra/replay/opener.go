package replay

import (
	"context"
	"io"
	"net/url"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/fd1az/multichain-arb/internal/apperror"
)

// Opener returns the recording to replay.
type Opener interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	Describe() string
}

// File opens a local JSONL file.
type File string

func (f File) Open(context.Context) (io.ReadCloser, error) {
	r, err := os.Open(string(f))
	if err != nil {
		return nil, apperror.New(apperror.CodeReplaySourceError, apperror.WithCause(err), apperror.WithContext(string(f)))
	}
	return r, nil
}

func (f File) Describe() string { return "file:" + string(f) }

// S3Config locates a recording in S3 or an S3-compatible store.
type S3Config struct {
	Bucket          string
	Key             string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// S3Object streams a recording from object storage.
type S3Object struct {
	client *s3.Client
	bucket string
	key    string
}

// NewS3Object builds the S3 client. Static credentials are used when given,
// otherwise the default AWS credential chain applies.
func NewS3Object(ctx context.Context, cfg S3Config) (*S3Object, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, apperror.New(apperror.CodeReplaySourceError, apperror.WithCause(err), apperror.WithContext("load aws config"))
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		if u, err := url.Parse(endpoint); err != nil || u.Scheme == "" {
			endpoint = "https://" + endpoint
		}
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(endpoint) })
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	return &S3Object{client: s3.NewFromConfig(awsCfg, s3Opts...), bucket: cfg.Bucket, key: cfg.Key}, nil
}

func (o *S3Object) Open(ctx context.Context) (io.ReadCloser, error) {
	out, err := o.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.key),
	})
	if err != nil {
		return nil, apperror.New(apperror.CodeReplaySourceError, apperror.WithCause(err), apperror.WithContext(o.Describe()))
	}
	return out.Body, nil
}

func (o *S3Object) Describe() string { return "s3://" + o.bucket + "/" + o.key }
