package gallery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Direct upload limits. Captured videos go through this path, so the size
// bound matches the largest file the CLI will load.
const (
	UploadURLExpiry       = 15 * time.Minute
	MaxDirectUploadBytes  = 100 << 20
	directUploadMethodPUT = "PUT"
)

// allowedUploadTypes lists the content types accepted for direct uploads.
var allowedUploadTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/webp":      true,
	"image/heic":      true,
	"image/heif":      true,
	"video/mp4":       true,
	"video/quicktime": true,
	"video/webm":      true,
	"video/3gpp":      true,
}

// Saved describes a stored image.
type Saved struct {
	ItemName string `json:"itemName"`
	URL      string `json:"url"`
	Path     string `json:"path"`
}

// Upload is a signed target for a direct upload. The client sends the file
// bytes with Method to URL, including Headers, then confirms Path.
type Upload struct {
	URL       string            `json:"uploadUrl"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
	Path      string            `json:"path"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

// Service stores images and their gallery records.
type Service struct {
	blobs   BlobStore
	records RecordStore
	now     func() time.Time
}

// NewService creates a Service.
func NewService(blobs BlobStore, records RecordStore) *Service {
	return &Service{blobs: blobs, records: records, now: time.Now}
}

// Save stores data under the subject's gallery path, then writes the record.
// If the record write fails after the blob was stored, the returned error
// wraps ErrRecordWrite.
func (s *Service) Save(ctx context.Context, subjectID, itemName, fileName, contentType string, data []byte) (*Saved, error) {
	if err := validSubject(subjectID); err != nil {
		return nil, err
	}
	if itemName == "" {
		return nil, fmt.Errorf("item name is required")
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("image data is empty")
	}

	now := s.now()
	path := BlobPath(subjectID, now, itemName, fileName)
	log.Info().Str("item", itemName).Str("path", path).Int("bytes", len(data)).Msg("Uploading gallery image")

	if err := s.blobs.Put(ctx, path, data, contentType); err != nil {
		return nil, fmt.Errorf("store image %s: %w", path, err)
	}
	return s.addRecord(ctx, subjectID, itemName, path, now)
}

// PrepareUpload signs a direct upload of size bytes for the subject's
// gallery. It returns ErrDirectUploadUnsupported when the blob store cannot
// sign uploads.
func (s *Service) PrepareUpload(ctx context.Context, subjectID, itemName, fileName, contentType string, size int64) (*Upload, error) {
	if err := validSubject(subjectID); err != nil {
		return nil, err
	}
	signer, ok := s.blobs.(UploadSigner)
	if !ok {
		return nil, ErrDirectUploadUnsupported
	}
	switch {
	case itemName == "":
		return nil, fmt.Errorf("%w: item name is required", ErrInvalidUpload)
	case !allowedUploadTypes[contentType]:
		return nil, fmt.Errorf("%w: unsupported content type %q", ErrInvalidUpload, contentType)
	case size <= 0 || size > MaxDirectUploadBytes:
		return nil, fmt.Errorf("%w: size must be between 1 and %d bytes", ErrInvalidUpload, MaxDirectUploadBytes)
	}

	now := s.now()
	path := BlobPath(subjectID, now, itemName, fileName)
	url, err := signer.PresignPut(ctx, path, contentType, size, UploadURLExpiry)
	if err != nil {
		return nil, fmt.Errorf("sign upload %s: %w", path, err)
	}
	log.Info().Str("item", itemName).Str("path", path).Int64("bytes", size).Msg("Issued direct upload URL")
	return &Upload{
		URL:       url,
		Method:    directUploadMethodPUT,
		Headers:   map[string]string{"Content-Type": contentType},
		Path:      path,
		ExpiresAt: now.Add(UploadURLExpiry).UTC(),
	}, nil
}

// ConfirmUpload writes the gallery record for a completed direct upload.
// path must be one issued for the subject and the blob must exist.
func (s *Service) ConfirmUpload(ctx context.Context, subjectID, itemName, path string) (*Saved, error) {
	if err := validSubject(subjectID); err != nil {
		return nil, err
	}
	signer, ok := s.blobs.(UploadSigner)
	if !ok {
		return nil, ErrDirectUploadUnsupported
	}
	if itemName == "" {
		return nil, fmt.Errorf("%w: item name is required", ErrInvalidUpload)
	}
	if !OwnsPath(subjectID, path) {
		return nil, fmt.Errorf("%w: path %q is outside the subject's gallery", ErrInvalidUpload, path)
	}
	exists, err := signer.Exists(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("check upload %s: %w", path, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUploadNotFound, path)
	}
	return s.addRecord(ctx, subjectID, itemName, path, s.now())
}

func (s *Service) addRecord(ctx context.Context, subjectID, itemName, path string, at time.Time) (*Saved, error) {
	rec := Record{
		ID:        uuid.NewString(),
		Path:      path,
		ItemName:  itemName,
		CreatedAt: at.UTC(),
	}
	if err := s.records.Add(ctx, subjectID, rec); err != nil {
		log.Error().Err(err).Str("path", path).Str("collection", CollectionPath(subjectID)).Msg("Gallery record write failed after upload")
		return nil, fmt.Errorf("%w: %v", ErrRecordWrite, err)
	}
	url, err := s.blobs.URL(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("resolve url %s: %w", path, err)
	}

	log.Info().Str("item", itemName).Str("recordId", rec.ID).Msg("Gallery image saved")
	return &Saved{ItemName: itemName, URL: url, Path: path}, nil
}

// List returns the subject's gallery, newest first, with freshly resolved URLs.
func (s *Service) List(ctx context.Context, subjectID string) ([]Record, error) {
	if err := validSubject(subjectID); err != nil {
		return nil, err
	}
	recs, err := s.records.List(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list gallery: %w", err)
	}
	for i := range recs {
		if strings.TrimSpace(recs[i].Path) == "" {
			continue
		}
		url, err := s.blobs.URL(ctx, recs[i].Path)
		if err != nil {
			return nil, fmt.Errorf("resolve url %s: %w", recs[i].Path, err)
		}
		recs[i].URL = url
	}
	return recs, nil
}
