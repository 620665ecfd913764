package kmlsummary

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Client publishes report exports to an S3-compatible bucket
type S3Client struct {
	client     *s3.Client
	bucket     string
	bucketPath string
	endpoint   string
	publicURL  string
	uploader   *manager.Uploader
}

// NewS3Client creates a new S3 client for the configured endpoint
func NewS3Client(cfg S3Config) (*S3Client, error) {
	logger := slog.With("endpoint", cfg.Endpoint, "bucket", cfg.Bucket)
	logger.Info("initializing S3 client")

	customResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		if service == s3.ServiceID {
			return aws.Endpoint{
				URL:           cfg.Endpoint,
				SigningRegion: cfg.Region,
			}, nil
		}
		return aws.Endpoint{}, &smithy.GenericAPIError{Code: "UnknownEndpoint"}
	})

	// Exports are a handful of small objects per run.
	httpClient := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
		Timeout: 2 * time.Minute,
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithHTTPClient(httpClient),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		config.WithRegion(cfg.Region),
		config.WithEndpointResolverWithOptions(customResolver),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	logger.Info("S3 client initialized successfully")

	return &S3Client{
		client:     s3Client,
		bucket:     cfg.Bucket,
		bucketPath: strings.Trim(cfg.BucketPath, "/"),
		endpoint:   cfg.Endpoint,
		publicURL:  cfg.PublicURL,
		uploader:   manager.NewUploader(s3Client),
	}, nil
}

// ReportObjectKey builds the key of an export: {bucketPath}/{runID}/{stem}.{ext}.
func ReportObjectKey(bucketPath, runID, stem string, format ExportFormat) string {
	return path.Join(strings.Trim(bucketPath, "/"), runID, stem+"."+string(format))
}

// ReportKey returns the key of an export of the given run.
func (s *S3Client) ReportKey(runID, stem string, format ExportFormat) string {
	return ReportObjectKey(s.bucketPath, runID, stem, format)
}

// UploadReport uploads a rendered export
func (s *S3Client) UploadReport(ctx context.Context, s3Key string, data []byte, contentType string) error {
	logger := slog.With("s3_key", s3Key, "size_bytes", len(data))
	logger.Debug("uploading report")

	result, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s3Key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		ACL:         types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		logger.Error("upload failed", "error", err)
		return fmt.Errorf("failed to upload %s: %w", s3Key, err)
	}

	logger.Debug("report uploaded", "location", result.Location)
	return nil
}

// HeadObject checks if an object exists in S3 and returns its size.
// Returns (size, exists, error). If the object doesn't exist, exists is false and error is nil.
func (s *S3Client) HeadObject(ctx context.Context, s3Key string) (int64, bool, error) {
	result, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s3Key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return 0, false, nil
		}
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound" {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to head object %s: %w", s3Key, err)
	}

	var size int64
	if result.ContentLength != nil {
		size = *result.ContentLength
	}
	return size, true, nil
}

// GetPublicURL returns the public URL for an object. Without a configured
// public base URL the path-style endpoint URL is used.
func (s *S3Client) GetPublicURL(s3Key string) string {
	if s.publicURL != "" {
		return strings.TrimSuffix(s.publicURL, "/") + "/" + strings.TrimPrefix(s3Key, s.bucketPath+"/")
	}
	return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(s.endpoint, "/"), s.bucket, s3Key)
}
