package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/charlesng35/studiofolio/pkg/logger"
)

// S3Config configures an S3 compatible bucket (AWS, R2, MinIO).
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	// PublicBaseURL overrides generated object URLs, e.g. a CDN origin.
	PublicBaseURL string
	UsePathStyle  bool
	PartSize      int64
	Concurrency   int
}

// S3Store implements ObjectStore on an S3 bucket.
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	cfg      S3Config
	log      *zap.Logger
}

// NewS3Store builds the client and verifies the bucket exists.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	cfg.Bucket = strings.TrimSpace(cfg.Bucket)
	if cfg.Bucket == "" {
		return nil, errors.New("storage: s3 bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.PartSize < manager.MinUploadPartSize {
		cfg.PartSize = 5 << 20
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	store := &S3Store{
		client: client,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = cfg.PartSize
			u.Concurrency = cfg.Concurrency
		}),
		cfg: cfg,
		log: logger.WithModule("storage"),
	}

	if err := store.Ping(ctx); err != nil {
		return nil, err
	}
	store.log.Info("s3 bucket ready", zap.String("bucket", cfg.Bucket), zap.String("region", cfg.Region))
	return store, nil
}

// Ping checks that the bucket exists and is reachable with the configured credentials.
func (s *S3Store) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.cfg.Bucket)})
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound" {
		return fmt.Errorf("storage: bucket %q does not exist", s.cfg.Bucket)
	}
	return fmt.Errorf("storage: head bucket %q: %w", s.cfg.Bucket, err)
}

func (s *S3Store) Upload(ctx context.Context, key string, body io.Reader, size int64, opts UploadOptions) (Object, error) {
	key, err := CleanKey(key)
	if err != nil {
		return Object{}, err
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
		Body:   withProgress(body, opts.Progress),
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if opts.CacheControl != "" {
		input.CacheControl = aws.String(opts.CacheControl)
	}

	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return Object{}, fmt.Errorf("storage: upload %s: %w", key, err)
	}

	return Object{
		Key:         key,
		Size:        size,
		ContentType: opts.ContentType,
		URL:         s.PublicURL(key),
	}, nil
}

func (s *S3Store) PublicURL(key string) string {
	return publicS3URL(s.cfg, key)
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchKey" {
			return ErrNotFound
		}
		return fmt.Errorf("storage: delete %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) ListChildren(ctx context.Context, prefix string) (Listing, error) {
	prefix = normalizePrefix(prefix)

	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.cfg.Bucket),
		Delimiter: aws.String("/"),
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	var listing Listing
	pages := s3.NewListObjectsV2Paginator(s.client, input)
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return Listing{}, fmt.Errorf("storage: list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			listing.Objects = append(listing.Objects, Object{
				Key:          key,
				Size:         aws.ToInt64(obj.Size),
				URL:          s.PublicURL(key),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
		for _, cp := range page.CommonPrefixes {
			listing.Prefixes = append(listing.Prefixes, aws.ToString(cp.Prefix))
		}
	}
	return listing, nil
}

func publicS3URL(cfg S3Config, key string) string {
	escaped := escapeKey(key)
	if base := strings.TrimRight(cfg.PublicBaseURL, "/"); base != "" {
		return base + "/" + escaped
	}
	if endpoint := strings.TrimRight(cfg.Endpoint, "/"); endpoint != "" {
		if cfg.UsePathStyle {
			return endpoint + "/" + cfg.Bucket + "/" + escaped
		}
		if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
			return u.Scheme + "://" + cfg.Bucket + "." + u.Host + "/" + escaped
		}
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", cfg.Bucket, cfg.Region, escaped)
}

func escapeKey(key string) string {
	parts := strings.Split(strings.TrimLeft(key, "/"), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
