// Package lambdaboot assembles the service from configuration: AWS clients,
// API keys held in SSM, the gallery backends, the two pipelines and the
// HTTP server. The Lambda and the local API server share it.
package lambdaboot

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/fpang/hair-diagnosis-helper/internal/api"
	"github.com/fpang/hair-diagnosis-helper/internal/config"
	"github.com/fpang/hair-diagnosis-helper/internal/diagnosis"
	"github.com/fpang/hair-diagnosis-helper/internal/gallery"
	"github.com/fpang/hair-diagnosis-helper/internal/gemini"
	"github.com/fpang/hair-diagnosis-helper/internal/logging"
	"github.com/fpang/hair-diagnosis-helper/internal/media"
	"github.com/fpang/hair-diagnosis-helper/internal/synthesis"
)

// ParameterAPI is the subset of the SSM client used to read secrets.
type ParameterAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// AWSClients holds the AWS config and the SSM client.
type AWSClients struct {
	Config aws.Config
	SSM    *ssm.Client
}

// InitAWS loads the default AWS config.
func InitAWS(ctx context.Context) (AWSClients, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return AWSClients{}, fmt.Errorf("load AWS config: %w", err)
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return AWSClients{Config: cfg, SSM: ssm.NewFromConfig(cfg)}, nil
}

// LoadAPIKeys fills missing API keys from their SSM parameters. A key that
// cannot be read stays empty and is logged; the pipeline that needs it
// reports a ConfigurationError when called.
func LoadAPIKeys(ctx context.Context, params ParameterAPI, cfg *config.Config) {
	if cfg.LLMAPIKey == "" && cfg.SSMLLMKeyParam != "" {
		cfg.LLMAPIKey = loadSecret(ctx, params, cfg.SSMLLMKeyParam, config.LLMKeyEnv)
	}
	if cfg.ImageGenAPIKey == "" && cfg.SSMImageGenParam != "" {
		cfg.ImageGenAPIKey = loadSecret(ctx, params, cfg.SSMImageGenParam, config.ImageGenKeyEnv)
	}
}

func loadSecret(ctx context.Context, params ParameterAPI, name, credential string) string {
	start := time.Now()
	result, err := params.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		log.Warn().Err(err).Str("param", name).Str("credential", credential).Msg("Failed to read API key from SSM")
		return ""
	}
	if result.Parameter == nil || result.Parameter.Value == nil {
		log.Warn().Str("param", name).Str("credential", credential).Msg("SSM parameter has no value")
		return ""
	}
	log.Debug().Str("param", name).Dur("elapsed", time.Since(start)).Msg("API key loaded from SSM")
	return *result.Parameter.Value
}

// NewBlobStore creates the configured blob backend. awsCfg is only used for s3.
func NewBlobStore(cfg *config.Config, awsCfg aws.Config) (gallery.BlobStore, error) {
	switch cfg.BlobBackend {
	case config.BlobS3:
		return gallery.NewS3BlobStore(s3.NewFromConfig(awsCfg), cfg.MediaBucket), nil
	case config.BlobMinio:
		return gallery.NewMinioBlobStore(gallery.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
	case config.BlobMemory:
		log.Warn().Msg("Using in-memory blob store; images are lost on restart")
		return gallery.NewMemoryBlobStore(), nil
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
	}
}

// NewRecordStore creates the configured gallery record backend.
func NewRecordStore(cfg *config.Config, awsCfg aws.Config) (gallery.RecordStore, error) {
	switch cfg.GalleryBackend {
	case config.GalleryDynamoDB:
		return gallery.NewDynamoRecordStore(dynamodb.NewFromConfig(awsCfg), cfg.GalleryTable), nil
	case config.GalleryMemory:
		log.Warn().Msg("Using in-memory gallery records; records are lost on restart")
		return gallery.NewMemoryRecordStore(), nil
	default:
		return nil, fmt.Errorf("unknown gallery backend %q", cfg.GalleryBackend)
	}
}

// Pipelines builds the diagnosis and synthesis pipelines. Each gets its own
// executor so the backoff bases can differ.
func Pipelines(cfg *config.Config) (*diagnosis.Pipeline, *synthesis.Pipeline) {
	fetcher := media.NewFetcher(cfg.FetchTimeout)
	diag := diagnosis.NewPipeline(
		gemini.NewExecutor(gemini.WithBaseDelay(cfg.DiagnosisBackoff)),
		fetcher,
		diagnosis.Config{
			Model:             cfg.TextModelConfig(),
			MaxAttempts:       cfg.MaxAttempts,
			Timeout:           cfg.PipelineTimeout,
			MaxImageDimension: cfg.MaxImageDimension,
			Schema:            diagnosis.ParseSchema(cfg.DiagnosisSchema),
		},
	)
	synth := synthesis.NewPipeline(
		gemini.NewExecutor(gemini.WithBaseDelay(cfg.ImageBackoff)),
		fetcher,
		synthesis.Config{
			Model:             cfg.ImageModelConfig(),
			MaxAttempts:       cfg.MaxAttempts,
			Timeout:           cfg.PipelineTimeout,
			MaxImageDimension: cfg.MaxImageDimension,
		},
	)
	return diag, synth
}

// Build resolves secrets and backends and returns the API server. AWS is
// only contacted when the configuration needs it.
func Build(ctx context.Context, name string, cfg *config.Config) (*api.Server, error) {
	start := time.Now()

	var awsCfg aws.Config
	if cfg.NeedsAWS() {
		clients, err := InitAWS(ctx)
		if err != nil {
			return nil, err
		}
		awsCfg = clients.Config
		LoadAPIKeys(ctx, clients.SSM, cfg)
	}

	blobs, err := NewBlobStore(cfg, awsCfg)
	if err != nil {
		return nil, fmt.Errorf("blob store: %w", err)
	}
	records, err := NewRecordStore(cfg, awsCfg)
	if err != nil {
		return nil, fmt.Errorf("gallery store: %w", err)
	}

	diag, synth := Pipelines(cfg)
	srv := api.NewServer(diag, synth, gallery.NewService(blobs, records),
		api.WithServiceName(name),
		api.WithOriginSecret(cfg.OriginVerifySecret),
	)

	StartupLog(name, cfg, start).Log()
	return srv, nil
}

// StartupLog describes cfg without revealing secret values.
func StartupLog(name string, cfg *config.Config, initStart time.Time) *logging.StartupLogger {
	return logging.NewStartupLogger(name).
		Version(os.Getenv("COMMIT_HASH")).
		Credential(config.LLMKeyEnv, cfg.LLMAPIKey != "").
		Credential(config.ImageGenKeyEnv, cfg.ImageGenAPIKey != "").
		Config("textModel", cfg.TextModel).
		Config("imageModel", cfg.ImageModel).
		Config("blobBackend", cfg.BlobBackend).
		Config("galleryBackend", cfg.GalleryBackend).
		Config("maxAttempts", fmt.Sprint(cfg.MaxAttempts)).
		Feature("originVerify", cfg.OriginVerifySecret != "").
		Feature("imageDownscale", cfg.MaxImageDimension > 0).
		Feature("directUpload", cfg.BlobBackend != config.BlobMemory).
		Resource("bucket", "media", cfg.MediaBucket).
		Resource("table", "gallery", cfg.GalleryTable).
		Resource("ssmParam", "llmKey", cfg.SSMLLMKeyParam).
		Resource("ssmParam", "imageGenKey", cfg.SSMImageGenParam).
		InitDuration(time.Since(initStart))
}
