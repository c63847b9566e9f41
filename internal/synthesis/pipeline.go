// Package synthesis renders a chosen hairstyle and haircolor onto the
// subject's photo and refines the result from free-text instructions.
package synthesis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/fpang/hair-diagnosis-helper/internal/diagnosis"
	"github.com/fpang/hair-diagnosis-helper/internal/gemini"
	"github.com/fpang/hair-diagnosis-helper/internal/media"
	"github.com/fpang/hair-diagnosis-helper/internal/metrics"
)

// GeneratedImage is the output of synthesis and refinement, and the input
// of the next refinement.
type GeneratedImage = gemini.GeneratedImage

// StyleDirectives names the proposal entries to render.
type StyleDirectives struct {
	Hairstyle diagnosis.Suggestion
	Haircolor diagnosis.Suggestion
}

// Config holds the pipeline settings.
type Config struct {
	Model             gemini.Model
	MaxAttempts       int
	Timeout           time.Duration
	MaxImageDimension int
}

// Pipeline performs image synthesis and refinement. It is safe for concurrent use.
type Pipeline struct {
	exec   diagnosis.Executor
	images diagnosis.ImageLoader
	cfg    Config
}

// NewPipeline creates a Pipeline.
func NewPipeline(exec diagnosis.Executor, images diagnosis.ImageLoader, cfg Config) *Pipeline {
	return &Pipeline{exec: exec, images: images, cfg: cfg}
}

// Synthesize renders d onto the image at baseImage, which may be a remote
// URL, a data: URL or bare base64.
func (p *Pipeline) Synthesize(ctx context.Context, baseImage string, d StyleDirectives) (*GeneratedImage, error) {
	if strings.TrimSpace(d.Hairstyle.Name) == "" {
		return nil, &gemini.InvalidInputError{Field: "selectedStyle.name", Reason: "is required"}
	}
	if strings.TrimSpace(d.Haircolor.Name) == "" {
		return nil, &gemini.InvalidInputError{Field: "selectedColor.name", Reason: "is required"}
	}
	return p.run(ctx, "synthesize", baseImage, synthesisInstruction(d))
}

// Refine applies a free-text instruction to a previously generated image.
// An empty instruction is rejected before any provider call.
func (p *Pipeline) Refine(ctx context.Context, baseImage, instruction string) (*GeneratedImage, error) {
	if strings.TrimSpace(instruction) == "" {
		return nil, &gemini.InvalidInputError{Field: "refinementInstruction", Reason: "is required"}
	}
	return p.run(ctx, "refine", baseImage, refinementInstruction(instruction))
}

func (p *Pipeline) run(ctx context.Context, operation, baseImage, instruction string) (*GeneratedImage, error) {
	start := time.Now()
	attempts := 0
	img, err := p.generate(ctx, baseImage, instruction, &attempts)

	metrics.RecordAICall(metrics.AICall{
		Operation: operation,
		Model:     p.cfg.Model.Name,
		Attempts:  attempts,
		Latency:   time.Since(start),
		Outcome:   gemini.CodeOf(err),
	})
	if err != nil {
		log.Error().Err(err).
			Str("operation", operation).
			Str("code", gemini.CodeOf(err)).
			Dur("duration", time.Since(start)).
			Msg("Image generation failed")
		return nil, err
	}

	log.Info().
		Str("operation", operation).
		Str("mimeType", img.MIMEType).
		Int("encodedBytes", len(img.EncodedData)).
		Int("attempts", attempts).
		Dur("duration", time.Since(start)).
		Msg("Image generation complete")
	return img, nil
}

func (p *Pipeline) generate(ctx context.Context, baseImage, instruction string, attempts *int) (*GeneratedImage, error) {
	if strings.TrimSpace(baseImage) == "" {
		return nil, &gemini.InvalidInputError{Field: "baseImageReference", Reason: "is required"}
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

	asset, err := p.images.Load(ctx, baseImage)
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
			genai.NewPartFromBytes(asset.Data, asset.MIMEType),
			genai.NewPartFromText(instruction),
		)},
		GenerationConfig: &gemini.GenerationConfig{
			ResponseModalities: []string{gemini.ModalityImage},
		},
	}

	resp, err := p.exec.Execute(ctx, endpoint, payload, p.cfg.MaxAttempts)
	if err != nil {
		*attempts = gemini.AttemptsOf(err)
		return nil, fmt.Errorf("image request: %w", err)
	}
	*attempts = resp.Attempts

	img, err := gemini.ExtractImage(resp.Body)
	if err != nil {
		return nil, err
	}
	return &img, nil
}
