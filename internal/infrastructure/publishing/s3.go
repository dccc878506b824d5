package publishing

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/odyssee/backend/internal/domain/tenancy"
	"go.uber.org/zap"
)

const defaultS3Region = "us-east-1"

// S3Publisher writes documents to an S3-compatible bucket (AWS S3, MinIO,
// Scaleway, OVH...). A client is built per call from the agency's own
// credentials and is not reused across agencies.
type S3Publisher struct {
	logger *zap.Logger
}

// NewS3Publisher creates an S3 publisher
func NewS3Publisher(logger *zap.Logger) *S3Publisher {
	return &S3Publisher{logger: logger}
}

// Publish uploads doc under cfg.Prefix and returns its object location
func (p *S3Publisher) Publish(ctx context.Context, cfg tenancy.S3Config, doc Document) (*Result, error) {
	client, err := newS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}

	key := objectKey(cfg.Prefix, fileName(doc))
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(doc.Content),
		ContentType:   aws.String(contentType(doc)),
		ContentLength: aws.Int64(int64(len(doc.Content))),
	})
	if err != nil {
		p.logger.Error("Failed to upload document to S3",
			zap.String("bucket", cfg.Bucket),
			zap.String("key", key),
			zap.Error(err))
		return nil, fmt.Errorf("s3: put %s/%s: %w", cfg.Bucket, key, err)
	}

	p.logger.Info("Published document to S3",
		zap.String("bucket", cfg.Bucket),
		zap.String("key", key),
		zap.Int("bytes", len(doc.Content)))

	return &Result{
		Location: "s3://" + cfg.Bucket + "/" + key,
		URL:      publicURL(cfg, key),
	}, nil
}

func newS3Client(ctx context.Context, cfg tenancy.S3Config) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = defaultS3Region
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("s3: load config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

func objectKey(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// publicURL prefers the configured public base URL, then the custom
// endpoint, then the AWS virtual-hosted address.
func publicURL(cfg tenancy.S3Config, key string) string {
	escaped := (&url.URL{Path: key}).EscapedPath()
	if cfg.PublicBaseURL != "" {
		return strings.TrimRight(cfg.PublicBaseURL, "/") + "/" + escaped
	}
	if cfg.Endpoint != "" {
		base := strings.TrimRight(cfg.Endpoint, "/")
		if cfg.UsePathStyle {
			return base + "/" + cfg.Bucket + "/" + escaped
		}
		if u, err := url.Parse(base); err == nil && u.Host != "" {
			u.Host = cfg.Bucket + "." + u.Host
			return strings.TrimRight(u.String(), "/") + "/" + escaped
		}
		return base + "/" + cfg.Bucket + "/" + escaped
	}
	region := cfg.Region
	if region == "" {
		region = defaultS3Region
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", cfg.Bucket, region, escaped)
}
