package diagnosis

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/fpang/hair-diagnosis-helper/internal/gemini"
	"github.com/fpang/hair-diagnosis-helper/internal/media"
	"github.com/fpang/hair-diagnosis-helper/internal/metrics"
)

// Executor sends a provider request with retries.
type Executor interface {
	Execute(ctx context.Context, endpoint string, payload any, maxAttempts int) (*gemini.Response, error)
}

// ImageLoader resolves an image locator to bytes.
type ImageLoader interface {
	Load(ctx context.Context, locator string) (*media.Asset, error)
}

// Config holds the pipeline settings.
type Config struct {
	Model             gemini.Model
	MaxAttempts       int
	Timeout           time.Duration // upper bound for one Diagnose call; 0 disables
	MaxImageDimension int           // 0 disables downscaling
	Schema            Schema
}

// Pipeline runs diagnoses. It keeps no per-call state and is safe for
// concurrent use.
type Pipeline struct {
	exec   Executor
	images ImageLoader
	cfg    Config
}

// NewPipeline creates a Pipeline.
func NewPipeline(exec Executor, images ImageLoader, cfg Config) *Pipeline {
	return &Pipeline{exec: exec, images: images, cfg: cfg}
}

// Run validates a client request and diagnoses its front photo.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	return p.Diagnose(ctx, req.ImageReferences[SlotFrontPhoto], req.SubjectProfile, req.GenderCategory)
}

// ValidateRequest checks the fields a diagnosis request must carry.
func ValidateRequest(req Request) error {
	if req.ImageReferences[SlotFrontPhoto] == "" {
		return &gemini.InvalidInputError{Field: "imageReferences." + SlotFrontPhoto, Reason: "is required"}
	}
	if req.SubjectProfile.Identifier == "" {
		return &gemini.InvalidInputError{Field: "subjectProfile.identifier", Reason: "is required"}
	}
	if !req.GenderCategory.Valid() {
		return &gemini.InvalidInputError{Field: "genderCategory", Reason: "must be female or male"}
	}
	return nil
}

// Diagnose fetches the image at imageLocator, asks the text model for a
// diagnosis and validates the answer.
func (p *Pipeline) Diagnose(ctx context.Context, imageLocator string, profile SubjectProfile, gender Gender) (*Result, error) {
	start := time.Now()
	attempts := 0
	result, err := p.diagnose(ctx, imageLocator, profile, gender, &attempts)

	metrics.RecordAICall(metrics.AICall{
		Operation: "diagnose",
		Model:     p.cfg.Model.Name,
		Attempts:  attempts,
		Latency:   time.Since(start),
		Outcome:   gemini.CodeOf(err),
	})
	if err != nil {
		log.Error().Err(err).
			Str("subject", profile.Identifier).
			Str("code", gemini.CodeOf(err)).
			Dur("duration", time.Since(start)).
			Msg("Diagnosis failed")
		return nil, err
	}

	log.Info().
		Str("subject", profile.Identifier).
		Str("displayName", profile.EffectiveDisplayName()).
		Str("gender", string(gender)).
		Int("attempts", attempts).
		Dur("duration", time.Since(start)).
		Msg("Diagnosis complete")
	return result, nil
}

func (p *Pipeline) diagnose(ctx context.Context, imageLocator string, profile SubjectProfile, gender Gender, attempts *int) (*Result, error) {
	if imageLocator == "" {
		return nil, &gemini.InvalidInputError{Field: "imageLocator", Reason: "is required"}
	}
	if !gender.Valid() {
		return nil, &gemini.InvalidInputError{Field: "genderCategory", Reason: "must be female or male"}
	}
	endpoint, err := p.cfg.Model.Endpoint()
	if err != nil {
		return nil, err
	}

	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	asset, err := p.images.Load(ctx, imageLocator)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, gemini.NewDeadlineError(0, 0, fmt.Errorf("image fetch: %w", ctxErr))
		}
		return nil, err
	}
	asset, err = media.Normalize(asset, p.cfg.MaxImageDimension)
	if err != nil {
		return nil, err
	}

	payload := gemini.Request{
		Contents: []*genai.Content{gemini.UserContent(
			genai.NewPartFromText(BuildInstruction(gender, profile.EffectiveDisplayName())),
			genai.NewPartFromBytes(asset.Data, asset.MIMEType),
		)},
		GenerationConfig: &gemini.GenerationConfig{
			ResponseModalities: []string{gemini.ModalityText},
			ResponseMIMEType:   "application/json",
		},
	}

	resp, err := p.exec.Execute(ctx, endpoint, payload, p.cfg.MaxAttempts)
	if err != nil {
		*attempts = gemini.AttemptsOf(err)
		return nil, fmt.Errorf("diagnosis request: %w", err)
	}
	*attempts = resp.Attempts

	text, err := gemini.ExtractText(resp.Body)
	if err != nil {
		return nil, err
	}
	outcome := Validate(text, p.cfg.Schema)
	if !outcome.OK() {
		return nil, outcome.Err()
	}
	return outcome.Result, nil
}
