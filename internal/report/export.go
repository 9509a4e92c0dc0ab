package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// FileName is the download name for an artifact, e.g.
// "dashboard-report-20240301T101500Z.json".
func (a *Artifact) FileName() string {
	return fmt.Sprintf("%s-report-%s.json", a.Type, a.GeneratedAt.UTC().Format("20060102T150405Z"))
}

// WriteTo writes the artifact as indented JSON.
func (a *Artifact) WriteTo(w io.Writer) (int64, error) {
	b, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("encode %s report: %w", a.Type, err)
	}
	n, err := w.Write(b)
	return int64(n), err
}

// S3Config holds the bucket artifacts are uploaded to.
type S3Config struct {
	Bucket           string
	Region           string
	AccessKeyID      string
	SecretAccessKey  string
	CloudFrontDomain string
	Prefix           string
}

// PutObjectAPI is the part of *s3.Client the uploader needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader stores exported artifacts in S3.
type Uploader struct {
	client PutObjectAPI
	cfg    S3Config
}

// NewUploader builds an S3 client from static credentials, or from the
// default AWS credential chain when none are given.
func NewUploader(ctx context.Context, cfg S3Config) (*Uploader, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	sdkConfig, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewUploaderWithClient(s3.NewFromConfig(sdkConfig), cfg), nil
}

// NewUploaderWithClient wraps an existing client.
func NewUploaderWithClient(client PutObjectAPI, cfg S3Config) *Uploader {
	if cfg.Prefix == "" {
		cfg.Prefix = "reports/"
	}
	return &Uploader{client: client, cfg: cfg}
}

// Upload stores the artifact and returns its public URL.
func (u *Uploader) Upload(ctx context.Context, a *Artifact) (string, error) {
	var buf bytes.Buffer
	if _, err := a.WriteTo(&buf); err != nil {
		return "", err
	}
	key := u.cfg.Prefix + a.FileName()
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:             aws.String(u.cfg.Bucket),
		Key:                aws.String(key),
		Body:               bytes.NewReader(buf.Bytes()),
		ContentType:        aws.String("application/json"),
		ContentDisposition: aws.String(fmt.Sprintf("attachment; filename=%q", a.FileName())),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload report to S3: %w", err)
	}

	if u.cfg.CloudFrontDomain != "" {
		return fmt.Sprintf("https://%s/%s", u.cfg.CloudFrontDomain, key), nil
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.cfg.Bucket, u.cfg.Region, key), nil
}
