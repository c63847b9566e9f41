package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/fpang/hair-diagnosis-helper/internal/gallery"
	"github.com/fpang/hair-diagnosis-helper/internal/gemini"
)

// Codes used by the HTTP layer in addition to the pipeline error codes.
const (
	CodeMethodNotAllowed  = "method_not_allowed"
	CodeNotFound          = "not_found"
	CodeForbidden         = "forbidden"
	CodeGalleryRecord     = "gallery_record_error"
	CodeUploadUnsupported = "upload_unsupported"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// httpError sends a JSON error response. clientMsg is returned to the caller;
// internalDetails are logged server-side only.
func httpError(w http.ResponseWriter, r *http.Request, status int, code, clientMsg string, internalDetails ...string) {
	if len(internalDetails) > 0 {
		zerolog.Ctx(r.Context()).Error().
			Int("status", status).
			Str("code", code).
			Str("clientMsg", clientMsg).
			Strs("internalDetails", internalDetails).
			Msg("HTTP error with internal details")
	}
	respondJSON(w, status, ErrorResponse{Error: code, Message: clientMsg})
}

// clientMessages are the messages returned for server-side failures. The
// underlying error can carry provider bodies and image URLs, so it is logged
// rather than returned.
var clientMessages = map[string]string{
	gemini.CodeConfiguration:    "the AI service is not configured",
	gemini.CodeImageFetch:       "the image could not be retrieved",
	gemini.CodeExhaustedRetries: "the AI service is unavailable, please try again later",
	gemini.CodeNonRetriable:     "the AI service rejected the request",
	gemini.CodeMalformed:        "the AI service returned an invalid result",
	gemini.CodeMissingImageData: "the AI service did not return an image",
	CodeGalleryRecord:           "the image was stored but could not be added to the gallery",
	CodeUploadUnsupported:       "direct uploads are not available, post the file to /gallery",
	gemini.CodeInternal:         "internal error",
}

// writeError maps err onto a status and a stable code.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status == http.StatusBadRequest {
		respondJSON(w, status, ErrorResponse{Error: code, Message: err.Error()})
		return
	}
	httpError(w, r, status, code, clientMessages[code], err.Error())
}

func classify(err error) (int, string) {
	var invalid *gemini.InvalidInputError
	switch {
	case errors.As(err, &invalid), errors.Is(err, gallery.ErrInvalidSubject),
		errors.Is(err, gallery.ErrInvalidUpload), errors.Is(err, gallery.ErrUploadNotFound):
		return http.StatusBadRequest, gemini.CodeInvalidInput
	case errors.Is(err, gallery.ErrDirectUploadUnsupported):
		return http.StatusNotImplemented, CodeUploadUnsupported
	case errors.Is(err, gallery.ErrRecordWrite):
		return http.StatusInternalServerError, CodeGalleryRecord
	}
	code := gemini.CodeOf(err)
	if _, ok := clientMessages[code]; !ok {
		code = gemini.CodeInternal
	}
	return http.StatusInternalServerError, code
}

// decodeBody reads a JSON body of at most limit bytes into v.
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, v interface{}) error {
	body := http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &gemini.InvalidInputError{Field: "body", Reason: fmt.Sprintf("exceeds %d bytes", limit)}
		}
		if errors.Is(err, io.EOF) {
			return &gemini.InvalidInputError{Field: "body", Reason: "is required"}
		}
		return &gemini.InvalidInputError{Field: "body", Reason: "is not valid JSON"}
	}
	return nil
}

func requireMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	httpError(w, r, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "method not allowed")
	return false
}
