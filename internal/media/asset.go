// Package media acquires the images sent to the AI provider: remote photos
// fetched by URL and inline images passed as data: URLs or bare base64.
package media

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Asset is image bytes plus their MIME type. Assets live for one provider
// call and are not retained.
type Asset struct {
	Data     []byte
	MIMEType string
	Locator  string
}

// Base64 returns the standard base64 encoding of the image bytes.
func (a *Asset) Base64() string {
	return base64.StdEncoding.EncodeToString(a.Data)
}

// ImageFetchError reports an image that could not be acquired: a non-2xx
// fetch, a non-image payload, or undecodable inline data.
type ImageFetchError struct {
	Locator     string
	Status      int
	ContentType string
	Cause       error
}

func (e *ImageFetchError) Error() string {
	msg := "failed to fetch image " + e.Locator
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.ContentType != "" {
		msg += " (content type " + e.ContentType + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ImageFetchError) Unwrap() error { return e.Cause }

// IsRemote reports whether locator is an http(s) URL.
func IsRemote(locator string) bool {
	l := strings.ToLower(locator)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

// Decode builds an Asset from a data: URL or a bare base64 string. The MIME
// type comes from the data: URL header when present, else from the content.
// The result is always PNG or JPEG.
func Decode(locator string) (*Asset, error) {
	display := describeInline(locator)
	payload := strings.TrimSpace(locator)
	declared := ""

	if strings.HasPrefix(payload, "data:") {
		meta, data, ok := strings.Cut(payload[len("data:"):], ",")
		if !ok {
			return nil, &ImageFetchError{Locator: display, Cause: fmt.Errorf("data URL has no payload")}
		}
		params := strings.Split(meta, ";")
		if params[len(params)-1] != "base64" {
			return nil, &ImageFetchError{Locator: display, Cause: fmt.Errorf("data URL is not base64 encoded")}
		}
		declared = strings.ToLower(params[0])
		payload = data
	}

	if payload == "" {
		return nil, &ImageFetchError{Locator: display, Cause: fmt.Errorf("empty image data")}
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, &ImageFetchError{Locator: display, Cause: fmt.Errorf("invalid base64: %w", err)}
	}

	mimeType := declared
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = sniff(data)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, &ImageFetchError{Locator: display, ContentType: mimeType, Cause: fmt.Errorf("inline data is not an image")}
	}
	return ensureSupported(&Asset{Data: data, MIMEType: mimeType, Locator: display})
}

// sniff detects the MIME type from content, without parameters.
func sniff(data []byte) string {
	mt := mimetype.Detect(data).String()
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return mt
}

// describeInline renders an inline locator for logs and errors without its payload.
func describeInline(locator string) string {
	if strings.HasPrefix(locator, "data:") {
		if i := strings.IndexByte(locator, ','); i >= 0 {
			return locator[:i] + ",..."
		}
	}
	return fmt.Sprintf("inline(%d bytes)", len(locator))
}

// Code returns the client-facing error code.
func (e *ImageFetchError) Code() string { return "image_fetch_error" }
