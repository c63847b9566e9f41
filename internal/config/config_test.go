package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpang/hair-diagnosis-helper/internal/gemini"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(env(nil))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, time.Second, cfg.DiagnosisBackoff)
	assert.Equal(t, 2*time.Second, cfg.ImageBackoff)
	assert.Equal(t, 120*time.Second, cfg.PipelineTimeout)
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 0, cfg.MaxImageDimension)
	assert.Equal(t, BlobMemory, cfg.BlobBackend)
	assert.Equal(t, GalleryMemory, cfg.GalleryBackend)
	assert.Equal(t, 8080, cfg.Port)
	assert.False(t, cfg.NeedsAWS())
}

func TestFromEnv_MissingKeysAreNotFatal(t *testing.T) {
	cfg, err := FromEnv(env(nil))
	require.NoError(t, err)

	_, err = cfg.TextModelConfig().Endpoint()
	var ce *gemini.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, LLMKeyEnv, ce.Credential)

	_, err = cfg.ImageModelConfig().Endpoint()
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ImageGenKeyEnv, ce.Credential)
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"LLM_API_KEY":              "llm",
		"IMAGEGEN_API_KEY":         "img",
		"GEMINI_TEXT_MODEL":        "text-model",
		"GEMINI_IMAGE_MODEL":       "image-model",
		"AI_MAX_ATTEMPTS":          "5",
		"DIAGNOSIS_BACKOFF_MS":     "10",
		"IMAGE_BACKOFF_MS":         "0",
		"PIPELINE_TIMEOUT_SECONDS": "60",
		"MAX_IMAGE_DIMENSION":      "1024",
		"BLOB_BACKEND":             "s3",
		"MEDIA_BUCKET_NAME":        "media",
		"GALLERY_BACKEND":          "dynamodb",
		"GALLERY_TABLE_NAME":       "gallery",
		"PORT":                     "9090",
	}))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, cfg.DiagnosisBackoff)
	assert.Equal(t, time.Duration(0), cfg.ImageBackoff)
	assert.Equal(t, time.Minute, cfg.PipelineTimeout)
	assert.Equal(t, 1024, cfg.MaxImageDimension)
	assert.Equal(t, 9090, cfg.Port)
	assert.True(t, cfg.NeedsAWS())

	m := cfg.TextModelConfig()
	assert.Equal(t, "text-model", m.Name)
	assert.Equal(t, "llm", m.APIKey)
	assert.Equal(t, "image-model", cfg.ImageModelConfig().Name)
}

func TestFromEnv_InvalidNumbers(t *testing.T) {
	_, err := FromEnv(env(map[string]string{
		"AI_MAX_ATTEMPTS":      "three",
		"DIAGNOSIS_BACKOFF_MS": "-1",
		"PORT":                 "0",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AI_MAX_ATTEMPTS")
	assert.Contains(t, err.Error(), "DIAGNOSIS_BACKOFF_MS")
	assert.Contains(t, err.Error(), "PORT")
}

func TestFromEnv_BackendRequirements(t *testing.T) {
	_, err := FromEnv(env(map[string]string{"BLOB_BACKEND": "s3"}))
	assert.ErrorContains(t, err, "MEDIA_BUCKET_NAME")

	_, err = FromEnv(env(map[string]string{"BLOB_BACKEND": "minio"}))
	assert.ErrorContains(t, err, "MINIO_ENDPOINT")

	_, err = FromEnv(env(map[string]string{"GALLERY_BACKEND": "dynamodb"}))
	assert.ErrorContains(t, err, "GALLERY_TABLE_NAME")

	_, err = FromEnv(env(map[string]string{"BLOB_BACKEND": "gcs"}))
	assert.ErrorContains(t, err, "BLOB_BACKEND")
}

func TestNeedsAWS_SSMFallback(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{"SSM_LLM_KEY_PARAM": "/hair/llm-key"}))
	require.NoError(t, err)
	assert.True(t, cfg.NeedsAWS())

	cfg, err = FromEnv(env(map[string]string{"SSM_LLM_KEY_PARAM": "/hair/llm-key", "LLM_API_KEY": "set"}))
	require.NoError(t, err)
	assert.False(t, cfg.NeedsAWS())
}

func TestLoad_ReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("GEMINI_TEXT_MODEL=from-dotenv\n"), 0o600))
	// Register a restore, then unset so the .env value is applied.
	t.Setenv("GEMINI_TEXT_MODEL", "")
	require.NoError(t, os.Unsetenv("GEMINI_TEXT_MODEL"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.TextModel)
}
