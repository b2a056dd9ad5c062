package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	cfgpkg "gastoflow/pkg/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// BlobStorageService is the primary content store: an S3-compatible bucket
// (MinIO in local deployments) holding the canonical copy of every attached
// receipt.
type BlobStorageService struct {
	client  *s3.Client
	presign *s3.PresignClient
	cfg     *cfgpkg.BlobStorageConfig
	logger  *zap.Logger
}

func NewBlobStorageService(ctx context.Context, cfg *cfgpkg.BlobStorageConfig, logger *zap.Logger) (*BlobStorageService, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("failed to load blob storage config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})

	return &BlobStorageService{
		client:  client,
		presign: s3.NewPresignClient(client),
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// Upload stores the object and returns its URL. The URL is not publicly
// readable when the bucket is private; use PresignReadURL for that.
func (s *BlobStorageService) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload blob %s: %w", key, err)
	}

	s.logger.Debug("Blob uploaded", zap.String("key", key), zap.Int("size", len(data)))
	return s.objectURL(key), nil
}

func (s *BlobStorageService) Download(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download blob %s: %w", key, err)
	}
	defer out.Body.Close()

	return io.ReadAll(out.Body)
}

func (s *BlobStorageService) Delete(ctx context.Context, key string) (bool, error) {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete blob %s: %w", key, err)
	}
	return true, nil
}

// PresignReadURL issues a read-only URL valid for the given number of minutes
// (at least one), served inline so browsers render images directly.
func (s *BlobStorageService) PresignReadURL(ctx context.Context, key string, minutes int) (string, error) {
	if minutes < 1 {
		minutes = 1
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     aws.String(s.cfg.Bucket),
		Key:                        aws.String(key),
		ResponseContentDisposition: aws.String("inline"),
	}, s3.WithPresignExpires(time.Duration(minutes)*time.Minute))
	if err != nil {
		return "", fmt.Errorf("failed to presign read url for %s: %w", key, err)
	}

	return req.URL, nil
}

func (s *BlobStorageService) objectURL(key string) string {
	return strings.TrimSuffix(s.cfg.Endpoint, "/") + "/" + s.cfg.Bucket + "/" + key
}
