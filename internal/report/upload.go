package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/neo4j-partners/neo4j-deploy/internal/config"
)

// Environment variables holding static credentials for report upload.
// When unset the default AWS credential chain is used.
const (
	EnvAccessKey = "NEO4J_DEPLOY_REPORT_ACCESS_KEY"
	EnvSecretKey = "NEO4J_DEPLOY_REPORT_SECRET_KEY"
)

// ObjectPutter is the subset of the S3 client used for uploads.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader copies report files to an S3 compatible bucket.
type Uploader struct {
	Client ObjectPutter
	Bucket string
	Prefix string
}

// NewUploader builds an S3 client from the report settings.
func NewUploader(ctx context.Context, cfg config.Report, getenv func(string) string) (*Uploader, error) {
	if !cfg.UploadEnabled() {
		return nil, errors.New("report upload is not configured: set report.bucket in settings")
	}
	if getenv == nil {
		getenv = os.Getenv
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if ak, sk := getenv(EnvAccessKey), getenv(EnvSecretKey); ak != "" && sk != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(ak, sk, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return &Uploader{Client: client, Bucket: cfg.Bucket, Prefix: cfg.Prefix}, nil
}

// Upload puts the file at p under the configured prefix and returns its key.
func (u *Uploader) Upload(ctx context.Context, p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", fmt.Errorf("failed to open report: %w", err)
	}
	defer func() { _ = f.Close() }()

	key := path.Join(u.Prefix, filepath.Base(p))
	_, err = u.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("text/markdown; charset=utf-8"),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("failed to upload report to s3://%s/%s (%s): %w", u.Bucket, key, apiErr.ErrorCode(), err)
		}
		return "", fmt.Errorf("failed to upload report to s3://%s/%s: %w", u.Bucket, key, err)
	}
	return key, nil
}
