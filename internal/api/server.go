package api

import (
	"context"
	"net/http"

	"github.com/klauspost/compress/gzhttp"

	"github.com/fpang/hair-diagnosis-helper/internal/diagnosis"
	"github.com/fpang/hair-diagnosis-helper/internal/gallery"
	"github.com/fpang/hair-diagnosis-helper/internal/media"
	"github.com/fpang/hair-diagnosis-helper/internal/synthesis"
)

// DefaultServiceName is reported by /health.
const DefaultServiceName = "hair-diagnosis-api"

// Request body limits. /synthesize and /refine carry an inline base64 image,
// so their limit fits the largest image the fetcher accepts.
const (
	maxJSONBody    = 1 << 20
	maxImageBody   = media.DefaultMaxImageBytes*4/3 + maxJSONBody
	maxGalleryBody = 32 << 20
)

// Diagnoser runs a diagnosis request. *diagnosis.Pipeline implements it.
type Diagnoser interface {
	Run(ctx context.Context, req diagnosis.Request) (*diagnosis.Result, error)
}

// Synthesizer generates and refines images. *synthesis.Pipeline implements it.
type Synthesizer interface {
	Synthesize(ctx context.Context, baseImage string, d synthesis.StyleDirectives) (*synthesis.GeneratedImage, error)
	Refine(ctx context.Context, baseImage, instruction string) (*synthesis.GeneratedImage, error)
}

// Gallery stores and lists subject images. *gallery.Service implements it.
type Gallery interface {
	Save(ctx context.Context, subjectID, itemName, fileName, contentType string, data []byte) (*gallery.Saved, error)
	PrepareUpload(ctx context.Context, subjectID, itemName, fileName, contentType string, size int64) (*gallery.Upload, error)
	ConfirmUpload(ctx context.Context, subjectID, itemName, path string) (*gallery.Saved, error)
	List(ctx context.Context, subjectID string) ([]gallery.Record, error)
}

// Server routes API requests to the pipelines.
type Server struct {
	diagnoser    Diagnoser
	synthesizer  Synthesizer
	gallery      Gallery
	service      string
	originSecret string
}

// Option configures a Server.
type Option func(*Server)

// WithServiceName sets the name reported by /health.
func WithServiceName(name string) Option {
	return func(s *Server) { s.service = name }
}

// WithOriginSecret rejects requests whose x-origin-verify header does not
// match secret. An empty secret disables the check.
func WithOriginSecret(secret string) Option {
	return func(s *Server) { s.originSecret = secret }
}

// NewServer creates a Server. gal may be nil, in which case /gallery is not
// routed.
func NewServer(diag Diagnoser, synth Synthesizer, gal Gallery, opts ...Option) *Server {
	s := &Server{diagnoser: diag, synthesizer: synth, gallery: gal, service: DefaultServiceName}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the bare request multiplexer.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/diagnose", s.handleDiagnose)
	mux.HandleFunc("/synthesize", s.handleSynthesize)
	mux.HandleFunc("/refine", s.handleRefine)
	if s.gallery != nil {
		mux.HandleFunc("/gallery", s.handleGallery)
		mux.HandleFunc("/gallery/upload-url", s.handleUploadURL)
		mux.HandleFunc("/gallery/confirm", s.handleUploadConfirm)
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		httpError(w, r, http.StatusNotFound, CodeNotFound, "not found")
	})
	return mux
}

// Handler returns the routes wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.Routes()
	h = withMetrics(h)
	h = withOriginVerify(s.originSecret, h)
	h = withLogging(h)
	h = withRequestID(h)
	h = withCORS(h)
	return gzhttp.GzipHandler(h)
}
