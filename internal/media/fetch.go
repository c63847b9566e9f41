package media

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultMaxImageBytes bounds a single fetched image.
const DefaultMaxImageBytes = 20 << 20

// Fetcher loads images from remote URLs or inline encodings.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewFetcher creates a Fetcher whose remote fetches time out after timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: DefaultMaxImageBytes,
	}
}

// NewFetcherWithClient creates a Fetcher that uses client for remote fetches.
func NewFetcherWithClient(client *http.Client) *Fetcher {
	return &Fetcher{client: client, maxBytes: DefaultMaxImageBytes}
}

// Load fetches http(s) locators and decodes everything else as inline data.
func (f *Fetcher) Load(ctx context.Context, locator string) (*Asset, error) {
	if IsRemote(locator) {
		return f.Fetch(ctx, locator)
	}
	return Decode(locator)
}

// Fetch downloads the image at url. A non-2xx status, a non-image content
// type, or an image that is not PNG, JPEG or convertible to PNG is an
// ImageFetchError. A missing or generic content type is replaced
// by one sniffed from the body.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Asset, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &ImageFetchError{Locator: url, Cause: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &ImageFetchError{Locator: url, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ImageFetchError{Locator: url, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, &ImageFetchError{Locator: url, Status: resp.StatusCode, Cause: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(data)) > f.maxBytes {
		return nil, &ImageFetchError{Locator: url, Status: resp.StatusCode, Cause: fmt.Errorf("image exceeds %d bytes", f.maxBytes)}
	}

	header := resp.Header.Get("Content-Type")
	mimeType, _, _ := mime.ParseMediaType(header)
	if mimeType == "" || mimeType == "application/octet-stream" || mimeType == "binary/octet-stream" {
		mimeType = sniff(data)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, &ImageFetchError{Locator: url, Status: resp.StatusCode, ContentType: header}
	}

	log.Debug().
		Str("url", url).
		Str("mimeType", mimeType).
		Int("bytes", len(data)).
		Dur("duration", time.Since(start)).
		Msg("Fetched image")

	return ensureSupported(&Asset{Data: data, MIMEType: mimeType, Locator: url})
}
