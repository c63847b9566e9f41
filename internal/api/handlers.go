package api

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/fpang/hair-diagnosis-helper/internal/gemini"
	"github.com/fpang/hair-diagnosis-helper/internal/synthesis"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	respondJSON(w, http.StatusOK, HealthResponse{Status: "ok", Service: s.service})
}

// POST /diagnose
func (s *Server) handleDiagnose(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req DiagnoseRequest
	if err := decodeBody(w, r, maxJSONBody, &req); err != nil {
		writeError(w, r, err)
		return
	}

	zerolog.Ctx(r.Context()).Info().
		Str("subject", req.SubjectProfile.Identifier).
		Str("gender", string(req.GenderCategory)).
		Int("imageReferences", len(req.ImageReferences)).
		Msg("Diagnosis requested")

	result, err := s.diagnoser.Run(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// POST /synthesize
func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req SynthesizeRequest
	if err := decodeBody(w, r, maxImageBody, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.BaseImageReference) == "" {
		writeError(w, r, &gemini.InvalidInputError{Field: "baseImageReference", Reason: "is required"})
		return
	}

	zerolog.Ctx(r.Context()).Info().
		Str("subject", req.SubjectIdentifier).
		Str("style", req.SelectedStyle.Name).
		Str("color", req.SelectedColor.Name).
		Msg("Synthesis requested")

	img, err := s.synthesizer.Synthesize(r.Context(), req.BaseImageReference, synthesis.StyleDirectives{
		Hairstyle: req.SelectedStyle,
		Haircolor: req.SelectedColor,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, img)
}

// POST /refine
func (s *Server) handleRefine(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req RefineRequest
	if err := decodeBody(w, r, maxImageBody, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.BaseImageReference) == "" {
		writeError(w, r, &gemini.InvalidInputError{Field: "baseImageReference", Reason: "is required"})
		return
	}

	zerolog.Ctx(r.Context()).Info().
		Str("subject", req.SubjectIdentifier).
		Int("instructionLength", len(req.RefinementInstruction)).
		Msg("Refinement requested")

	img, err := s.synthesizer.Refine(r.Context(), req.BaseImageReference, req.RefinementInstruction)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, img)
}

// GET /gallery?subjectIdentifier=... lists; POST /gallery saves.
func (s *Server) handleGallery(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	if r.Method == http.MethodGet {
		records, err := s.gallery.List(r.Context(), r.URL.Query().Get("subjectIdentifier"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, GalleryListResponse{Records: records})
		return
	}

	var req GallerySaveRequest
	if err := decodeBody(w, r, maxGalleryBody, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.ItemName) == "" {
		writeError(w, r, &gemini.InvalidInputError{Field: "itemName", Reason: "is required"})
		return
	}
	if len(req.Data) == 0 {
		writeError(w, r, &gemini.InvalidInputError{Field: "data", Reason: "is required"})
		return
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(req.Data)
	}

	saved, err := s.gallery.Save(r.Context(), req.SubjectIdentifier, req.ItemName, req.FileName, contentType, req.Data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, saved)
}

// POST /gallery/upload-url signs a direct upload to the blob store, so large
// captures such as videos never pass through the API body.
func (s *Server) handleUploadURL(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req UploadURLRequest
	if err := decodeBody(w, r, maxJSONBody, &req); err != nil {
		writeError(w, r, err)
		return
	}

	up, err := s.gallery.PrepareUpload(r.Context(), req.SubjectIdentifier, req.ItemName, req.FileName, req.ContentType, req.Size)
	if err != nil {
		writeError(w, r, err)
		return
	}
	zerolog.Ctx(r.Context()).Info().
		Str("subject", req.SubjectIdentifier).
		Str("item", req.ItemName).
		Int64("size", req.Size).
		Str("path", up.Path).
		Msg("Upload URL issued")
	respondJSON(w, http.StatusOK, up)
}

// POST /gallery/confirm records a completed direct upload.
func (s *Server) handleUploadConfirm(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req UploadConfirmRequest
	if err := decodeBody(w, r, maxJSONBody, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		writeError(w, r, &gemini.InvalidInputError{Field: "path", Reason: "is required"})
		return
	}

	saved, err := s.gallery.ConfirmUpload(r.Context(), req.SubjectIdentifier, req.ItemName, req.Path)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, saved)
}
