package gallery

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig configures an S3-compatible endpoint such as a local MinIO.
type MinioConfig struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioBlobStore stores gallery blobs on an S3-compatible server. The bucket
// is created on first use if it does not exist.
type MinioBlobStore struct {
	client   *minio.Client
	bucket   string
	region   string
	expiry   time.Duration
	initOnce sync.Once
	initErr  error
}

// NewMinioBlobStore validates cfg and creates the client. It does not contact
// the server.
func NewMinioBlobStore(cfg MinioConfig) (*MinioBlobStore, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("minio access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	return &MinioBlobStore{client: client, bucket: bucket, region: region, expiry: DefaultURLExpiry}, nil
}

func (m *MinioBlobStore) ensureBucket(ctx context.Context) error {
	m.initOnce.Do(func() {
		exists, err := m.client.BucketExists(ctx, m.bucket)
		if err != nil {
			m.initErr = err
			return
		}
		if exists {
			return
		}
		m.initErr = m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{Region: m.region})
	})
	return m.initErr
}

func (m *MinioBlobStore) Put(ctx context.Context, path string, data []byte, contentType string) error {
	if err := m.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}
	_, err := m.client.PutObject(ctx, m.bucket, path, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("minio PutObject %s: %w", path, err)
	}
	return nil
}

func (m *MinioBlobStore) URL(ctx context.Context, path string) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, m.bucket, path, m.expiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", path, err)
	}
	return u.String(), nil
}

// PresignPut signs a PUT for path. The signature does not bind the content
// type or size; ConfirmUpload checks that the object exists.
func (m *MinioBlobStore) PresignPut(ctx context.Context, path, contentType string, size int64, expiry time.Duration) (string, error) {
	if err := m.ensureBucket(ctx); err != nil {
		return "", fmt.Errorf("ensure bucket: %w", err)
	}
	u, err := m.client.PresignedPutObject(ctx, m.bucket, path, expiry)
	if err != nil {
		return "", fmt.Errorf("presign put %s: %w", path, err)
	}
	return u.String(), nil
}

func (m *MinioBlobStore) Exists(ctx context.Context, path string) (bool, error) {
	_, err := m.client.StatObject(ctx, m.bucket, path, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, fmt.Errorf("minio StatObject %s: %w", path, err)
	}
	return true, nil
}

var (
	_ BlobStore    = (*MinioBlobStore)(nil)
	_ UploadSigner = (*MinioBlobStore)(nil)
)
