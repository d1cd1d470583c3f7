package storage

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/bryanwahyu/mediscan/internal/application"
	"github.com/bryanwahyu/mediscan/internal/domain/analysis"
	"github.com/bryanwahyu/mediscan/internal/domain/media"
	"github.com/bryanwahyu/mediscan/internal/domain/report"
)

// DefaultLinkExpiry is how long presigned links stay valid.
const DefaultLinkExpiry = 24 * time.Hour

// MinioStore is an S3-compatible object store. It uploads media for analysis
// and shares exported reports through presigned links.
type MinioStore struct {
	client     *minio.Client
	bucketName string
	region     string
	expiry     time.Duration
	clock      application.Clock
}

var (
	_ analysis.Uploader = (*MinioStore)(nil)
	_ report.Sharer     = (*MinioStore)(nil)
)

// MinioConfig holds connection settings
type MinioConfig struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Expiry    time.Duration
}

// NewMinio buat koneksi MinIO, bucket dibuat kalau belum ada
func NewMinio(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, err
	}

	// pastikan bucket ada
	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, err
		}
	}

	expiry := cfg.Expiry
	if expiry <= 0 {
		expiry = DefaultLinkExpiry
	}
	return &MinioStore{
		client:     cli,
		bucketName: cfg.Bucket,
		region:     cfg.Region,
		expiry:     expiry,
		clock:      application.SystemClock{},
	}, nil
}

// Upload implementasi analysis.Uploader; the returned URL is presigned so
// the inference service can fetch a private object.
func (s *MinioStore) Upload(ctx context.Context, asset media.Asset) (analysis.UploadResult, error) {
	key := path.Join("media", string(asset.Kind), string(asset.ID)+filepath.Ext(asset.Path))
	url, err := s.put(ctx, asset.Path, key, asset.ContentType)
	if err != nil {
		return analysis.UploadResult{}, &analysis.UploadError{Cause: err}
	}
	return analysis.UploadResult{URL: url, AssetID: asset.ID, UploadedAt: s.clock.Now()}, nil
}

// Available implements report.Sharer.
func (s *MinioStore) Available() bool { return s != nil && s.client != nil }

// Share uploads an exported report and returns a link to it.
func (s *MinioStore) Share(ctx context.Context, localPath string) (string, error) {
	key := path.Join("reports", filepath.Base(localPath))
	return s.put(ctx, localPath, key, "application/pdf")
}

func (s *MinioStore) put(ctx context.Context, localPath, key, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
		if mt, err := mimetype.DetectFile(localPath); err == nil {
			contentType = mt.String()
		}
	}

	_, err := s.client.FPutObject(ctx, s.bucketName, key, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}

	u, err := s.client.PresignedGetObject(ctx, s.bucketName, key, s.expiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}
