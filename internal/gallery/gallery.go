// Package gallery persists captured photos and generated images per subject:
// the bytes go to a blob store and a metadata record goes to a per-subject
// collection that the gallery page lists newest-first.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DefaultFileName is used when an upload has no file name.
const DefaultFileName = "generated_image.png"

// ErrRecordWrite marks a save whose blob was stored but whose metadata record
// could not be written. The blob is not rolled back.
var ErrRecordWrite = errors.New("image stored but gallery record write failed")

// ErrInvalidSubject is returned for an empty subject identifier or one that
// would escape its storage prefix.
var ErrInvalidSubject = errors.New("invalid subject identifier")

// ErrInvalidUpload marks a direct-upload request or confirmation that was
// rejected before any blob or record was touched.
var ErrInvalidUpload = errors.New("invalid upload")

// ErrUploadNotFound is returned when a direct upload is confirmed but no blob
// exists at its path.
var ErrUploadNotFound = errors.New("uploaded object not found")

// ErrDirectUploadUnsupported is returned by PrepareUpload when the blob store
// cannot issue upload URLs. Callers fall back to Save.
var ErrDirectUploadUnsupported = errors.New("blob store does not support direct uploads")

// Record is a gallery entry. Path is the durable blob key; URL is resolved
// from it whenever records are listed and is not persisted.
type Record struct {
	ID        string    `json:"id" dynamodbav:"id"`
	URL       string    `json:"url" dynamodbav:"-"`
	Path      string    `json:"path" dynamodbav:"path"`
	ItemName  string    `json:"itemName" dynamodbav:"itemName"`
	CreatedAt time.Time `json:"createdAt" dynamodbav:"createdAt"`
}

// BlobStore stores blobs by path and issues read URLs for them.
type BlobStore interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
	// URL returns a URL for reading path that is valid from now on. Stores
	// with expiring URLs sign a new one on every call.
	URL(ctx context.Context, path string) (string, error)
}

// UploadSigner is implemented by blob stores that accept uploads straight
// from the client.
type UploadSigner interface {
	PresignPut(ctx context.Context, path, contentType string, size int64, expiry time.Duration) (string, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// RecordStore stores and lists gallery records per subject.
type RecordStore interface {
	Add(ctx context.Context, subjectID string, rec Record) error
	// List returns the subject's records ordered by CreatedAt, newest first.
	List(ctx context.Context, subjectID string) ([]Record, error)
}

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// SanitizeFileName replaces every character outside [a-zA-Z0-9._-] with '_'.
// An empty name becomes DefaultFileName.
func SanitizeFileName(name string) string {
	if name == "" {
		name = DefaultFileName
	}
	return unsafeFileChars.ReplaceAllString(name, "_")
}

// BlobPath returns users/{subject}/gallery/{unixMillis}_{safeItem}_{safeFileName}.
// Item and file names are sanitised so neither can add path segments.
func BlobPath(subjectID string, at time.Time, itemName, fileName string) string {
	item := unsafeFileChars.ReplaceAllString(itemName, "_")
	return fmt.Sprintf("users/%s/gallery/%d_%s_%s", subjectID, at.UnixMilli(), item, SanitizeFileName(fileName))
}

// OwnsPath reports whether path lies directly under the subject's gallery
// prefix.
func OwnsPath(subjectID, path string) bool {
	rest, ok := strings.CutPrefix(path, CollectionPath(subjectID)+"/")
	return ok && rest != "" && !strings.ContainsAny(rest, "/\\") && rest != "." && rest != ".."
}

// CollectionPath is the per-subject record collection name.
func CollectionPath(subjectID string) string {
	return "users/" + subjectID + "/gallery"
}

func validSubject(subjectID string) error {
	if strings.TrimSpace(subjectID) == "" || strings.ContainsAny(subjectID, "/#") {
		return fmt.Errorf("%w %q", ErrInvalidSubject, subjectID)
	}
	return nil
}
