// Package client calls the hair diagnosis API. Its methods satisfy the
// workflow collaborator interfaces, so a workflow.Controller can drive a
// remote deployment.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/hair-diagnosis-helper/internal/api"
	"github.com/fpang/hair-diagnosis-helper/internal/diagnosis"
	"github.com/fpang/hair-diagnosis-helper/internal/gallery"
	"github.com/fpang/hair-diagnosis-helper/internal/gemini"
	"github.com/fpang/hair-diagnosis-helper/internal/jsonutil"
	"github.com/fpang/hair-diagnosis-helper/internal/synthesis"
	"github.com/fpang/hair-diagnosis-helper/internal/workflow"
)

// defaultTimeout covers a full pipeline run including provider retries.
const defaultTimeout = 3 * time.Minute

// APIError is a non-2xx response from the API.
type APIError struct {
	Status    int
	ErrorCode string
	Message   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d (%s): %s", e.Status, e.ErrorCode, e.Message)
}

// Code returns the server's error code, so callers can classify remote
// failures the same way as local ones.
func (e *APIError) Code() string { return e.ErrorCode }

// Client calls the API at a base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a Client for the API at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Diagnose submits a diagnosis request. A 200 response without result and
// proposal objects is reported as a MalformedAIResponseError.
func (c *Client) Diagnose(ctx context.Context, req diagnosis.Request) (*diagnosis.Result, error) {
	body, err := c.do(ctx, http.MethodPost, "/diagnose", req)
	if err != nil {
		return nil, err
	}
	obj, err := jsonutil.DecodeObject(string(body))
	if err != nil {
		return nil, &gemini.MalformedAIResponseError{Raw: string(body), Reason: "diagnosis response is not a JSON object", Cause: err}
	}
	for _, key := range []string{"result", "proposal"} {
		if _, ok := obj[key].(map[string]interface{}); !ok {
			return nil, &gemini.MalformedAIResponseError{Raw: string(body), Reason: "diagnosis response has no " + key + " object"}
		}
	}
	var result diagnosis.Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &gemini.MalformedAIResponseError{Raw: string(body), Reason: "decode diagnosis", Cause: err}
	}
	return &result, nil
}

// Synthesize renders style and color onto the image at baseImage.
func (c *Client) Synthesize(ctx context.Context, baseImage string, style, color diagnosis.Suggestion, subjectID string) (*synthesis.GeneratedImage, error) {
	return c.image(ctx, "/synthesize", api.SynthesizeRequest{
		BaseImageReference: baseImage,
		SelectedStyle:      style,
		SelectedColor:      color,
		SubjectIdentifier:  subjectID,
	})
}

// Refine applies instruction to a generated image.
func (c *Client) Refine(ctx context.Context, baseImage, instruction, subjectID string) (*synthesis.GeneratedImage, error) {
	return c.image(ctx, "/refine", api.RefineRequest{
		BaseImageReference:    baseImage,
		RefinementInstruction: instruction,
		SubjectIdentifier:     subjectID,
	})
}

func (c *Client) image(ctx context.Context, path string, payload interface{}) (*synthesis.GeneratedImage, error) {
	body, err := c.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return nil, err
	}
	var img api.ImageResponse
	if err := json.Unmarshal(body, &img); err != nil {
		return nil, &gemini.MalformedAIResponseError{Raw: string(body), Reason: "decode image response", Cause: err}
	}
	if img.EncodedData == "" || img.MIMEType == "" {
		return nil, &gemini.MalformedAIResponseError{Raw: string(body), Reason: "image response needs encodedImage and mimeType"}
	}
	return &img, nil
}

// Upload stores f in the subject's gallery and returns its URL. The bytes
// are sent straight to the blob store through a signed URL; when the server
// cannot sign uploads they are posted inline to /gallery instead.
func (c *Client) Upload(ctx context.Context, subjectID, itemName string, f workflow.File) (string, error) {
	up, err := c.RequestUpload(ctx, api.UploadURLRequest{
		SubjectIdentifier: subjectID,
		ItemName:          itemName,
		FileName:          f.Name,
		ContentType:       f.ContentType,
		Size:              int64(len(f.Data)),
	})
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode == api.CodeUploadUnsupported {
		log.Debug().Str("item", itemName).Msg("Direct upload unavailable, posting inline")
		saved, err := c.SaveToGallery(ctx, api.GallerySaveRequest{
			SubjectIdentifier: subjectID,
			ItemName:          itemName,
			FileName:          f.Name,
			ContentType:       f.ContentType,
			Data:              f.Data,
		})
		if err != nil {
			return "", err
		}
		return saved.URL, nil
	}
	if err != nil {
		return "", err
	}

	if err := c.putBlob(ctx, up, f.Data); err != nil {
		return "", err
	}
	saved, err := c.ConfirmUpload(ctx, api.UploadConfirmRequest{
		SubjectIdentifier: subjectID,
		ItemName:          itemName,
		Path:              up.Path,
	})
	if err != nil {
		return "", err
	}
	return saved.URL, nil
}

// RequestUpload asks the API for a signed direct-upload target.
func (c *Client) RequestUpload(ctx context.Context, req api.UploadURLRequest) (*gallery.Upload, error) {
	body, err := c.do(ctx, http.MethodPost, "/gallery/upload-url", req)
	if err != nil {
		return nil, err
	}
	var up gallery.Upload
	if err := json.Unmarshal(body, &up); err != nil {
		return nil, fmt.Errorf("parse upload response: %w", err)
	}
	if up.URL == "" || up.Path == "" {
		return nil, fmt.Errorf("unexpected upload response: no uploadUrl or path (body: %s)", logTruncate(string(body)))
	}
	return &up, nil
}

// ConfirmUpload records a completed direct upload in the gallery.
func (c *Client) ConfirmUpload(ctx context.Context, req api.UploadConfirmRequest) (*gallery.Saved, error) {
	body, err := c.do(ctx, http.MethodPost, "/gallery/confirm", req)
	if err != nil {
		return nil, err
	}
	var saved gallery.Saved
	if err := json.Unmarshal(body, &saved); err != nil {
		return nil, fmt.Errorf("parse confirm response: %w", err)
	}
	return &saved, nil
}

// putBlob sends data to a signed upload URL. The request goes to the blob
// store, not the API, so it carries no API headers.
func (c *Client) putBlob(ctx context.Context, up *gallery.Upload, data []byte) error {
	start := time.Now()
	method := up.Method
	if method == "" {
		method = http.MethodPut
	}
	req, err := http.NewRequestWithContext(ctx, method, up.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	for k, v := range up.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload %s: %w", up.Path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("upload %s: blob store returned %d: %s", up.Path, resp.StatusCode, logTruncate(string(body)))
	}
	log.Debug().Str("path", up.Path).Int("bytes", len(data)).Dur("duration", time.Since(start)).Msg("Uploaded blob")
	return nil
}

// SaveToGallery posts an image to the gallery.
func (c *Client) SaveToGallery(ctx context.Context, req api.GallerySaveRequest) (*gallery.Saved, error) {
	body, err := c.do(ctx, http.MethodPost, "/gallery", req)
	if err != nil {
		return nil, err
	}
	var saved gallery.Saved
	if err := json.Unmarshal(body, &saved); err != nil {
		return nil, fmt.Errorf("parse gallery response: %w", err)
	}
	if saved.URL == "" {
		return nil, fmt.Errorf("unexpected gallery response: no url (body: %s)", logTruncate(string(body)))
	}
	return &saved, nil
}

// Gallery lists the subject's gallery, newest first.
func (c *Client) Gallery(ctx context.Context, subjectID string) ([]gallery.Record, error) {
	body, err := c.do(ctx, http.MethodGet, "/gallery?subjectIdentifier="+url.QueryEscape(subjectID), nil)
	if err != nil {
		return nil, err
	}
	var resp api.GalleryListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse gallery list: %w", err)
	}
	return resp.Records, nil
}

// Health checks that the API is reachable.
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	body, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return nil, err
	}
	var resp api.HealthResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse health response: %w", err)
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	start := time.Now()

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	log.Debug().Str("method", method).Str("path", path).Msg("API request")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debug().Int("statusCode", 0).Dur("duration", time.Since(start)).Err(err).Msg("API response")
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	log.Debug().Int("statusCode", resp.StatusCode).Dur("duration", time.Since(start)).Msg("API response")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, ErrorCode: gemini.CodeInternal, Message: logTruncate(string(body))}
		var er api.ErrorResponse
		if json.Unmarshal(body, &er) == nil && er.Error != "" {
			apiErr.ErrorCode = er.Error
			apiErr.Message = er.Message
		}
		log.Warn().Int("status", apiErr.Status).Str("code", apiErr.ErrorCode).Str("path", path).Msg("API returned an error")
		return nil, apiErr
	}
	return body, nil
}

func logTruncate(s string) string {
	if len(s) <= 200 {
		return s
	}
	return s[:200] + "..."
}
