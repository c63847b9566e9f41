package gallery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"
)

// DefaultURLExpiry is how long a read URL handed out by List or Save stays
// valid. URLs are signed per request, so records never hold an expired one.
const DefaultURLExpiry = 12 * time.Hour

// S3API is the subset of *s3.Client used by S3BlobStore.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Presigner is the subset of *s3.PresignClient used by S3BlobStore.
type S3Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3BlobStore stores gallery blobs in an S3 bucket. Reads and direct uploads
// go through presigned URLs.
type S3BlobStore struct {
	client    S3API
	presigner S3Presigner
	bucket    string
	expiry    time.Duration
}

// NewS3BlobStore creates an S3BlobStore backed by client.
func NewS3BlobStore(client *s3.Client, bucket string) *S3BlobStore {
	return &S3BlobStore{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    bucket,
		expiry:    DefaultURLExpiry,
	}
}

func (s *S3BlobStore) Put(ctx context.Context, path string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &path,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("S3 PutObject %s: %w", path, err)
	}
	log.Debug().Str("bucket", s.bucket).Str("key", path).Msg("Stored gallery image in S3")
	return nil
}

func (s *S3BlobStore) URL(ctx context.Context, path string) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &path,
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return "", fmt.Errorf("presign GetObject %s: %w", path, err)
	}
	return req.URL, nil
}

// PresignPut signs a PUT for path. Content-Type and Content-Length are part
// of the signature, so the upload must match both.
func (s *S3BlobStore) PresignPut(ctx context.Context, path, contentType string, size int64, expiry time.Duration) (string, error) {
	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:        &s.bucket,
		Key:           &path,
		ContentType:   &contentType,
		ContentLength: &size,
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("presign PutObject %s: %w", path, err)
	}
	return req.URL, nil
}

func (s *S3BlobStore) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &s.bucket, Key: &path})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, fmt.Errorf("S3 HeadObject %s: %w", path, err)
	}
	return true, nil
}

var (
	_ BlobStore    = (*S3BlobStore)(nil)
	_ UploadSigner = (*S3BlobStore)(nil)
)
