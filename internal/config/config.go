// Package config loads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/fpang/hair-diagnosis-helper/internal/gemini"
)

// Blob and gallery backends.
const (
	BlobS3          = "s3"
	BlobMinio       = "minio"
	BlobMemory      = "memory"
	GalleryDynamoDB = "dynamodb"
	GalleryMemory   = "memory"
)

// Credential names, reported in ConfigurationError and startup logs.
const (
	LLMKeyEnv      = "LLM_API_KEY"
	ImageGenKeyEnv = "IMAGEGEN_API_KEY"
)

// Config holds the settings shared by the API server, the Lambda and the CLI.
type Config struct {
	LLMAPIKey         string
	ImageGenAPIKey    string
	SSMLLMKeyParam    string
	SSMImageGenParam  string
	BaseURL           string
	TextModel         string
	ImageModel        string
	MaxAttempts       int
	DiagnosisBackoff  time.Duration
	ImageBackoff      time.Duration
	PipelineTimeout   time.Duration
	FetchTimeout      time.Duration
	MaxImageDimension int
	DiagnosisSchema   string

	BlobBackend    string
	MediaBucket    string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	GalleryBackend string
	GalleryTable   string

	Port               int
	OriginVerifySecret string
	APIBaseURL         string
}

// Defaults returns the configuration used when no variables are set.
func Defaults() Config {
	return Config{
		BaseURL:          gemini.DefaultBaseURL,
		TextModel:        gemini.DefaultTextModel,
		ImageModel:       gemini.DefaultImageModel,
		MaxAttempts:      3,
		DiagnosisBackoff: 1000 * time.Millisecond,
		ImageBackoff:     2000 * time.Millisecond,
		PipelineTimeout:  120 * time.Second,
		FetchTimeout:     30 * time.Second,
		DiagnosisSchema:  "full",
		BlobBackend:      BlobMemory,
		MinioBucket:      "hair-gallery",
		GalleryBackend:   GalleryMemory,
		Port:             8080,
		APIBaseURL:       "http://localhost:8080",
	}
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	switch err := godotenv.Load(); {
	case err == nil:
		log.Debug().Msg("Loaded .env file")
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv. Missing API keys are not an error; a
// pipeline reports them as a ConfigurationError when it is first used.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := Defaults()
	p := parser{getenv: getenv}

	cfg.LLMAPIKey = getenv(LLMKeyEnv)
	cfg.ImageGenAPIKey = getenv(ImageGenKeyEnv)
	cfg.SSMLLMKeyParam = getenv("SSM_LLM_KEY_PARAM")
	cfg.SSMImageGenParam = getenv("SSM_IMAGEGEN_KEY_PARAM")
	p.stringVar("GEMINI_BASE_URL", &cfg.BaseURL)
	p.stringVar("GEMINI_TEXT_MODEL", &cfg.TextModel)
	p.stringVar("GEMINI_IMAGE_MODEL", &cfg.ImageModel)
	p.intVar("AI_MAX_ATTEMPTS", &cfg.MaxAttempts, 1)
	p.durationVar("DIAGNOSIS_BACKOFF_MS", time.Millisecond, &cfg.DiagnosisBackoff)
	p.durationVar("IMAGE_BACKOFF_MS", time.Millisecond, &cfg.ImageBackoff)
	p.durationVar("PIPELINE_TIMEOUT_SECONDS", time.Second, &cfg.PipelineTimeout)
	p.durationVar("FETCH_TIMEOUT_SECONDS", time.Second, &cfg.FetchTimeout)
	p.intVar("MAX_IMAGE_DIMENSION", &cfg.MaxImageDimension, 0)
	p.stringVar("DIAGNOSIS_SCHEMA", &cfg.DiagnosisSchema)

	p.stringVar("BLOB_BACKEND", &cfg.BlobBackend)
	cfg.MediaBucket = getenv("MEDIA_BUCKET_NAME")
	cfg.MinioEndpoint = getenv("MINIO_ENDPOINT")
	cfg.MinioAccessKey = getenv("MINIO_ACCESS_KEY")
	cfg.MinioSecretKey = getenv("MINIO_SECRET_KEY")
	p.stringVar("MINIO_BUCKET", &cfg.MinioBucket)
	p.boolVar("MINIO_USE_SSL", &cfg.MinioUseSSL)

	p.stringVar("GALLERY_BACKEND", &cfg.GalleryBackend)
	cfg.GalleryTable = getenv("GALLERY_TABLE_NAME")

	p.intVar("PORT", &cfg.Port, 1)
	cfg.OriginVerifySecret = getenv("ORIGIN_VERIFY_SECRET")
	p.stringVar("HAIR_API_URL", &cfg.APIBaseURL)

	if len(p.errs) > 0 {
		return nil, errors.Join(p.errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks backend selections and the settings they depend on.
func (c *Config) Validate() error {
	var errs []error
	switch c.BlobBackend {
	case BlobMemory:
	case BlobS3:
		if c.MediaBucket == "" {
			errs = append(errs, errors.New("MEDIA_BUCKET_NAME is required when BLOB_BACKEND=s3"))
		}
	case BlobMinio:
		if c.MinioEndpoint == "" {
			errs = append(errs, errors.New("MINIO_ENDPOINT is required when BLOB_BACKEND=minio"))
		}
	default:
		errs = append(errs, fmt.Errorf("BLOB_BACKEND must be s3, minio or memory, got %q", c.BlobBackend))
	}
	switch c.GalleryBackend {
	case GalleryMemory:
	case GalleryDynamoDB:
		if c.GalleryTable == "" {
			errs = append(errs, errors.New("GALLERY_TABLE_NAME is required when GALLERY_BACKEND=dynamodb"))
		}
	default:
		errs = append(errs, fmt.Errorf("GALLERY_BACKEND must be dynamodb or memory, got %q", c.GalleryBackend))
	}
	return errors.Join(errs...)
}

// NeedsAWS reports whether any configured component talks to AWS.
func (c *Config) NeedsAWS() bool {
	return c.BlobBackend == BlobS3 || c.GalleryBackend == GalleryDynamoDB ||
		(c.LLMAPIKey == "" && c.SSMLLMKeyParam != "") ||
		(c.ImageGenAPIKey == "" && c.SSMImageGenParam != "")
}

// TextModelConfig returns the diagnosis model settings.
func (c *Config) TextModelConfig() gemini.Model {
	return gemini.Model{BaseURL: c.BaseURL, Name: c.TextModel, APIKey: c.LLMAPIKey, Credential: LLMKeyEnv}
}

// ImageModelConfig returns the synthesis model settings.
func (c *Config) ImageModelConfig() gemini.Model {
	return gemini.Model{BaseURL: c.BaseURL, Name: c.ImageModel, APIKey: c.ImageGenAPIKey, Credential: ImageGenKeyEnv}
}

type parser struct {
	getenv func(string) string
	errs   []error
}

func (p *parser) stringVar(name string, dst *string) {
	if v := strings.TrimSpace(p.getenv(name)); v != "" {
		*dst = v
	}
}

func (p *parser) intVar(name string, dst *int, min int) {
	v := strings.TrimSpace(p.getenv(name))
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", name, err))
		return
	}
	if n < min {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: must be at least %d, got %d", name, min, n))
		return
	}
	*dst = n
}

func (p *parser) durationVar(name string, unit time.Duration, dst *time.Duration) {
	n := -1
	p.intVar(name, &n, 0)
	if n >= 0 {
		*dst = time.Duration(n) * unit
	}
}

func (p *parser) boolVar(name string, dst *bool) {
	v := strings.TrimSpace(p.getenv(name))
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", name, err))
		return
	}
	*dst = b
}
