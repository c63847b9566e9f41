package synthesis

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpang/hair-diagnosis-helper/internal/diagnosis"
	"github.com/fpang/hair-diagnosis-helper/internal/gemini"
	"github.com/fpang/hair-diagnosis-helper/internal/media"
	"github.com/fpang/hair-diagnosis-helper/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.SetOutput(io.Discard)
	os.Exit(m.Run())
}

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

type fakeLoader struct{ calls int32 }

func (f *fakeLoader) Load(ctx context.Context, locator string) (*media.Asset, error) {
	atomic.AddInt32(&f.calls, 1)
	return &media.Asset{Data: pngHeader, MIMEType: "image/png", Locator: locator}, nil
}

type fakeExecutor struct {
	body    string
	err     error
	calls   int32
	payload gemini.Request
}

func (f *fakeExecutor) Execute(ctx context.Context, endpoint string, payload any, maxAttempts int) (*gemini.Response, error) {
	atomic.AddInt32(&f.calls, 1)
	f.payload = payload.(gemini.Request)
	if f.err != nil {
		return nil, f.err
	}
	return &gemini.Response{StatusCode: 200, Body: json.RawMessage(f.body), Attempts: 1}, nil
}

const imageBody = `{"candidates":[{"content":{"parts":[{"text":"done"},{"inlineData":{"mimeType":"image/jpeg","data":"aGVsbG8="}}]}}]}`

func testConfig() Config {
	return Config{
		Model:       gemini.Model{BaseURL: "http://ai.test", Name: "image-model", APIKey: "k", Credential: "IMAGEGEN_API_KEY"},
		MaxAttempts: 3,
		Timeout:     5 * time.Second,
	}
}

func directives() StyleDirectives {
	return StyleDirectives{
		Hairstyle: diagnosis.Suggestion{Name: "Layered bob", Description: "Soft layers"},
		Haircolor: diagnosis.Suggestion{Name: "Honey beige", Description: "Warm"},
	}
}

func TestSynthesize_Success(t *testing.T) {
	exec := &fakeExecutor{body: imageBody}
	p := NewPipeline(exec, &fakeLoader{}, testConfig())

	img, err := p.Synthesize(context.Background(), "https://img.test/front.png", directives())
	require.NoError(t, err)
	assert.Equal(t, "aGVsbG8=", img.EncodedData)
	assert.Equal(t, "image/jpeg", img.MIMEType)

	assert.Equal(t, []string{gemini.ModalityImage}, exec.payload.GenerationConfig.ResponseModalities)
	text := exec.payload.Contents[0].Parts[1].Text
	assert.Contains(t, text, "Layered bob")
	assert.Contains(t, text, "Honey beige")
}

func TestSynthesize_RequiresSelections(t *testing.T) {
	exec := &fakeExecutor{body: imageBody}
	p := NewPipeline(exec, &fakeLoader{}, testConfig())

	d := directives()
	d.Haircolor.Name = ""
	_, err := p.Synthesize(context.Background(), "https://img.test/front.png", d)
	var iie *gemini.InvalidInputError
	require.ErrorAs(t, err, &iie)
	assert.Equal(t, int32(0), exec.calls)
}

func TestRefine_AddsPreserveRules(t *testing.T) {
	exec := &fakeExecutor{body: imageBody}
	p := NewPipeline(exec, &fakeLoader{}, testConfig())

	_, err := p.Refine(context.Background(), "data:image/png;base64,AAAA", "make it a little shorter")
	require.NoError(t, err)
	text := exec.payload.Contents[0].Parts[1].Text
	assert.Contains(t, text, "make it a little shorter")
	assert.Contains(t, text, "Edit only the hair")
	assert.Contains(t, text, "face")
	assert.Contains(t, text, "background")
}

func TestRefine_EmptyInstruction(t *testing.T) {
	exec := &fakeExecutor{body: imageBody}
	loader := &fakeLoader{}
	p := NewPipeline(exec, loader, testConfig())

	for _, instr := range []string{"", "   \n"} {
		_, err := p.Refine(context.Background(), "AAAA", instr)
		var iie *gemini.InvalidInputError
		require.ErrorAs(t, err, &iie)
		assert.Equal(t, "refinementInstruction", iie.Field)
	}
	assert.Equal(t, int32(0), exec.calls)
	assert.Equal(t, int32(0), loader.calls)
}

func TestSynthesize_MissingImageData(t *testing.T) {
	exec := &fakeExecutor{body: `{"candidates":[{"content":{"parts":[{"text":"I can't edit this photo"}]}}]}`}
	_, err := NewPipeline(exec, &fakeLoader{}, testConfig()).Synthesize(context.Background(), "https://img.test/a.png", directives())
	var mide *gemini.MissingImageDataError
	require.ErrorAs(t, err, &mide)
}

func TestSynthesize_MissingCredential(t *testing.T) {
	cfg := testConfig()
	cfg.Model.APIKey = ""
	exec := &fakeExecutor{body: imageBody}

	_, err := NewPipeline(exec, &fakeLoader{}, cfg).Synthesize(context.Background(), "https://img.test/a.png", directives())
	var ce *gemini.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "IMAGEGEN_API_KEY", ce.Credential)
	assert.Equal(t, int32(0), exec.calls)
}

func TestRefine_NonRetriablePassesThrough(t *testing.T) {
	exec := &fakeExecutor{err: &gemini.NonRetriableError{Status: 400, Body: "bad"}}
	_, err := NewPipeline(exec, &fakeLoader{}, testConfig()).Refine(context.Background(), "AAAA", "shorter")
	var nre *gemini.NonRetriableError
	require.ErrorAs(t, err, &nre)
	assert.True(t, errors.Is(err, nre))
}

// TestRefine_ThroughProvider refines an inline image against a fake provider
// using the production executor, fetcher and image backoff base.
func TestRefine_ThroughProvider(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"IMAGE"`) {
			t.Errorf("expected image modality: %s", body)
		}
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(imageBody))
	}))
	defer srv.Close()

	var delays []time.Duration
	exec := gemini.NewExecutor(
		gemini.WithBaseDelay(2*time.Second),
		gemini.WithSleeper(func(ctx context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		}),
	)
	cfg := testConfig()
	cfg.Model.BaseURL = srv.URL

	prev := GeneratedImage{EncodedData: base64.StdEncoding.EncodeToString(pngHeader), MIMEType: "image/png"}
	img, err := NewPipeline(exec, media.NewFetcher(time.Second), cfg).Refine(context.Background(), prev.DataURL(), "add bangs")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", img.MIMEType)
	assert.Equal(t, []time.Duration{2 * time.Second}, delays)
}

func TestRefine_TimeoutDuringFetchIsExhaustedRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
			w.Header().Set("Content-Type", "image/png")
			w.Write(pngHeader)
		}
	}))
	defer srv.Close()

	exec := &fakeExecutor{body: imageBody}
	cfg := testConfig()
	cfg.Timeout = 100 * time.Millisecond

	_, err := NewPipeline(exec, media.NewFetcher(10*time.Second), cfg).
		Refine(context.Background(), srv.URL+"/generated.png", "shorter bangs")

	var ere *gemini.ExhaustedRetriesError
	require.ErrorAs(t, err, &ere)
	assert.True(t, ere.Timeout())
	assert.Equal(t, gemini.CodeExhaustedRetries, gemini.CodeOf(err))
	assert.Zero(t, atomic.LoadInt32(&exec.calls))
}
