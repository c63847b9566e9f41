package lambdaboot

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpang/hair-diagnosis-helper/internal/config"
	"github.com/fpang/hair-diagnosis-helper/internal/gallery"
	"github.com/fpang/hair-diagnosis-helper/internal/gemini"
	"github.com/fpang/hair-diagnosis-helper/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type fakeSSM struct {
	values map[string]string
	asked  []string
}

func (f *fakeSSM) GetParameter(ctx context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.asked = append(f.asked, *in.Name)
	if !aws.ToBool(in.WithDecryption) {
		return nil, errors.New("expected decryption")
	}
	v, ok := f.values[*in.Name]
	if !ok {
		return nil, &types.ParameterNotFound{}
	}
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Value: aws.String(v)}}, nil
}

func TestLoadAPIKeys_FromSSM(t *testing.T) {
	params := &fakeSSM{values: map[string]string{"/hair/llm": "llm-secret", "/hair/img": "img-secret"}}
	cfg := config.Defaults()
	cfg.SSMLLMKeyParam = "/hair/llm"
	cfg.SSMImageGenParam = "/hair/img"

	LoadAPIKeys(context.Background(), params, &cfg)
	assert.Equal(t, "llm-secret", cfg.LLMAPIKey)
	assert.Equal(t, "img-secret", cfg.ImageGenAPIKey)
}

func TestLoadAPIKeys_EnvWins(t *testing.T) {
	params := &fakeSSM{values: map[string]string{"/hair/llm": "from-ssm"}}
	cfg := config.Defaults()
	cfg.LLMAPIKey = "from-env"
	cfg.SSMLLMKeyParam = "/hair/llm"

	LoadAPIKeys(context.Background(), params, &cfg)
	assert.Equal(t, "from-env", cfg.LLMAPIKey)
	assert.Empty(t, params.asked)
}

func TestLoadAPIKeys_MissingParameterLeavesKeyEmpty(t *testing.T) {
	params := &fakeSSM{values: map[string]string{}}
	cfg := config.Defaults()
	cfg.SSMImageGenParam = "/hair/missing"

	LoadAPIKeys(context.Background(), params, &cfg)
	assert.Empty(t, cfg.ImageGenAPIKey)
	_, err := cfg.ImageModelConfig().Endpoint()
	var ce *gemini.ConfigurationError
	assert.ErrorAs(t, err, &ce)
}

func TestNewStores_Memory(t *testing.T) {
	cfg := config.Defaults()
	blobs, err := NewBlobStore(&cfg, aws.Config{})
	require.NoError(t, err)
	assert.IsType(t, &gallery.MemoryBlobStore{}, blobs)

	records, err := NewRecordStore(&cfg, aws.Config{})
	require.NoError(t, err)
	assert.IsType(t, &gallery.MemoryRecordStore{}, records)
}

func TestNewStores_Unknown(t *testing.T) {
	cfg := config.Defaults()
	cfg.BlobBackend = "ftp"
	_, err := NewBlobStore(&cfg, aws.Config{})
	assert.Error(t, err)

	cfg.GalleryBackend = "sqlite"
	_, err = NewRecordStore(&cfg, aws.Config{})
	assert.Error(t, err)
}

func TestBuild_MissingKeyIsReportedPerRequest(t *testing.T) {
	cfg := config.Defaults()
	srv, err := Build(context.Background(), "hair-test", &cfg)
	require.NoError(t, err)

	h := srv.Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	body := `{"imageReferences":{"item-front-photo":"data:image/png;base64,iVBORw0KGgo="},
		"subjectProfile":{"identifier":"U1"},"genderCategory":"female"}`
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/diagnose", strings.NewReader(body)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), gemini.CodeConfiguration)
}
