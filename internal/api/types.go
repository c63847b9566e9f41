// Package api serves the diagnosis, synthesis and gallery operations over
// HTTP. The same handler runs behind a local server and behind API Gateway.
package api

import (
	"github.com/fpang/hair-diagnosis-helper/internal/diagnosis"
	"github.com/fpang/hair-diagnosis-helper/internal/gallery"
	"github.com/fpang/hair-diagnosis-helper/internal/gemini"
)

// DiagnoseRequest is the body of POST /diagnose.
type DiagnoseRequest = diagnosis.Request

// SynthesizeRequest is the body of POST /synthesize.
type SynthesizeRequest struct {
	BaseImageReference string               `json:"baseImageReference"`
	SelectedStyle      diagnosis.Suggestion `json:"selectedStyle"`
	SelectedColor      diagnosis.Suggestion `json:"selectedColor"`
	SubjectIdentifier  string               `json:"subjectIdentifier,omitempty"`
}

// RefineRequest is the body of POST /refine.
type RefineRequest struct {
	BaseImageReference    string `json:"baseImageReference"`
	RefinementInstruction string `json:"refinementInstruction"`
	SubjectIdentifier     string `json:"subjectIdentifier,omitempty"`
}

// ImageResponse is returned by /synthesize and /refine.
type ImageResponse = gemini.GeneratedImage

// GallerySaveRequest is the body of POST /gallery. Data is base64 in JSON.
type GallerySaveRequest struct {
	SubjectIdentifier string `json:"subjectIdentifier"`
	ItemName          string `json:"itemName"`
	FileName          string `json:"fileName,omitempty"`
	ContentType       string `json:"contentType,omitempty"`
	Data              []byte `json:"data"`
}

// UploadURLRequest is the body of POST /gallery/upload-url.
type UploadURLRequest struct {
	SubjectIdentifier string `json:"subjectIdentifier"`
	ItemName          string `json:"itemName"`
	FileName          string `json:"fileName,omitempty"`
	ContentType       string `json:"contentType"`
	Size              int64  `json:"size"`
}

// UploadURLResponse is returned by POST /gallery/upload-url.
type UploadURLResponse = gallery.Upload

// UploadConfirmRequest is the body of POST /gallery/confirm, sent after the
// file was uploaded to the signed URL.
type UploadConfirmRequest struct {
	SubjectIdentifier string `json:"subjectIdentifier"`
	ItemName          string `json:"itemName"`
	Path              string `json:"path"`
}

// GallerySaveResponse is returned by POST /gallery and POST /gallery/confirm.
type GallerySaveResponse = gallery.Saved

// GalleryListResponse is returned by GET /gallery.
type GalleryListResponse struct {
	Records []gallery.Record `json:"records"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// ErrorResponse is the body of every non-2xx response. Error is a stable code.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
