package diagnosis

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fpang/hair-diagnosis-helper/internal/gemini"
	"github.com/fpang/hair-diagnosis-helper/internal/media"
)

// pngHeader is enough for content sniffing to report image/png.
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

type fakeLoader struct {
	err   error
	calls int32
}

func (f *fakeLoader) Load(ctx context.Context, locator string) (*media.Asset, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return &media.Asset{Data: pngHeader, MIMEType: "image/png", Locator: locator}, nil
}

type fakeExecutor struct {
	text     string
	err      error
	calls    int32
	endpoint string
	payload  gemini.Request
}

func (f *fakeExecutor) Execute(ctx context.Context, endpoint string, payload any, maxAttempts int) (*gemini.Response, error) {
	atomic.AddInt32(&f.calls, 1)
	f.endpoint = endpoint
	f.payload = payload.(gemini.Request)
	if f.err != nil {
		return nil, f.err
	}
	return &gemini.Response{StatusCode: 200, Body: textResponse(f.text), Attempts: 1}, nil
}

func textResponse(text string) json.RawMessage {
	b, _ := json.Marshal(map[string]interface{}{
		"candidates": []interface{}{
			map[string]interface{}{"content": map[string]interface{}{
				"role":  "model",
				"parts": []interface{}{map[string]interface{}{"text": text}},
			}},
		},
	})
	return b
}

func testConfig() Config {
	return Config{
		Model:       gemini.Model{BaseURL: "http://ai.test/v1beta", Name: "text-model", APIKey: "k", Credential: "LLM_API_KEY"},
		MaxAttempts: 3,
		Timeout:     5 * time.Second,
		Schema:      SchemaFull,
	}
}

func TestDiagnose_Success(t *testing.T) {
	exec := &fakeExecutor{text: sampleJSON(t)}
	p := NewPipeline(exec, &fakeLoader{}, testConfig())

	result, err := p.Diagnose(context.Background(), "https://img.test/front.png", SubjectProfile{Identifier: "u1"}, GenderFemale)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *result != sampleResult() {
		t.Errorf("unexpected result: %+v", result)
	}
	if !strings.Contains(exec.endpoint, "/models/text-model:generateContent") {
		t.Errorf("unexpected endpoint %s", exec.endpoint)
	}
	if exec.payload.GenerationConfig.ResponseMIMEType != "application/json" {
		t.Errorf("expected JSON response MIME type, got %q", exec.payload.GenerationConfig.ResponseMIMEType)
	}
	parts := exec.payload.Contents[0].Parts
	if len(parts) != 2 || parts[1].InlineData == nil || parts[1].InlineData.MIMEType != "image/png" {
		t.Errorf("expected instruction and inline image parts, got %+v", parts)
	}
}

func TestDiagnose_MissingCredential(t *testing.T) {
	exec := &fakeExecutor{text: sampleJSON(t)}
	loader := &fakeLoader{}
	cfg := testConfig()
	cfg.Model.APIKey = ""

	_, err := NewPipeline(exec, loader, cfg).Diagnose(context.Background(), "https://img.test/a.png", SubjectProfile{Identifier: "u1"}, GenderMale)
	var ce *gemini.ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if exec.calls != 0 || loader.calls != 0 {
		t.Errorf("expected no fetch or AI call, got %d fetches and %d calls", loader.calls, exec.calls)
	}
}

func TestDiagnose_FetchError(t *testing.T) {
	exec := &fakeExecutor{text: sampleJSON(t)}
	loader := &fakeLoader{err: &media.ImageFetchError{Locator: "x", Status: 404}}

	_, err := NewPipeline(exec, loader, testConfig()).Diagnose(context.Background(), "https://img.test/a.png", SubjectProfile{Identifier: "u1"}, GenderFemale)
	var fe *media.ImageFetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected ImageFetchError, got %v", err)
	}
	if exec.calls != 0 {
		t.Errorf("expected no AI call, got %d", exec.calls)
	}
}

func TestDiagnose_MalformedResponse(t *testing.T) {
	doc := withoutKey(t, sampleJSON(t), "proposal", "bestColors")
	p := NewPipeline(&fakeExecutor{text: doc}, &fakeLoader{}, testConfig())

	_, err := p.Diagnose(context.Background(), "https://img.test/a.png", SubjectProfile{Identifier: "u1"}, GenderFemale)
	var mre *gemini.MalformedAIResponseError
	if !errors.As(err, &mre) {
		t.Fatalf("expected MalformedAIResponseError, got %v", err)
	}
}

func TestDiagnose_ExecutorErrorIsWrapped(t *testing.T) {
	p := NewPipeline(&fakeExecutor{err: &gemini.ExhaustedRetriesError{Attempts: 3, LastStatus: 503}}, &fakeLoader{}, testConfig())

	_, err := p.Diagnose(context.Background(), "https://img.test/a.png", SubjectProfile{Identifier: "u1"}, GenderFemale)
	var ere *gemini.ExhaustedRetriesError
	if !errors.As(err, &ere) {
		t.Fatalf("expected ExhaustedRetriesError, got %v", err)
	}
	if gemini.CodeOf(err) != gemini.CodeExhaustedRetries {
		t.Errorf("unexpected code %s", gemini.CodeOf(err))
	}
}

func TestRun_ValidatesRequest(t *testing.T) {
	p := NewPipeline(&fakeExecutor{text: sampleJSON(t)}, &fakeLoader{}, testConfig())
	cases := map[string]Request{
		"no front photo": {ImageReferences: map[string]string{SlotSidePhoto: "x"}, SubjectProfile: SubjectProfile{Identifier: "u"}, GenderCategory: GenderFemale},
		"no subject":     {ImageReferences: map[string]string{SlotFrontPhoto: "x"}, GenderCategory: GenderFemale},
		"bad gender":     {ImageReferences: map[string]string{SlotFrontPhoto: "x"}, SubjectProfile: SubjectProfile{Identifier: "u"}, GenderCategory: "other"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := p.Run(context.Background(), req)
			var iie *gemini.InvalidInputError
			if !errors.As(err, &iie) {
				t.Fatalf("expected InvalidInputError, got %v", err)
			}
		})
	}
}

func TestBuildInstruction_VariesByGender(t *testing.T) {
	female := BuildInstruction(GenderFemale, "Hanako")
	male := BuildInstruction(GenderMale, "")
	if female == male {
		t.Error("expected gender-specific instructions")
	}
	if !strings.Contains(female, "Hanako") || !strings.Contains(male, "the customer") {
		t.Error("expected display name to be addressed")
	}
	for _, key := range []string{"bestColors", "makeup", "personalColor"} {
		if !strings.Contains(female, key) {
			t.Errorf("instruction should describe %s", key)
		}
	}
}

// TestDiagnose_ThroughProvider runs the pipeline against a fake provider
// that fails twice with 503 before answering.
func TestDiagnose_ThroughProvider(t *testing.T) {
	var hits int32
	doc := sampleJSON(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "secret" {
			t.Errorf("expected API key in query")
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"inlineData"`) {
			t.Errorf("expected inline image in payload: %s", body)
		}
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write(textResponse("```json\n" + doc + "\n```"))
	}))
	defer srv.Close()

	var slept time.Duration
	exec := gemini.NewExecutor(gemini.WithSleeper(func(ctx context.Context, d time.Duration) error {
		slept += d
		return nil
	}))
	cfg := testConfig()
	cfg.Model.BaseURL = srv.URL
	cfg.Model.APIKey = "secret"

	p := NewPipeline(exec, media.NewFetcher(time.Second), cfg)
	result, err := p.Diagnose(context.Background(), base64.StdEncoding.EncodeToString(pngHeader), SubjectProfile{Identifier: "u1"}, GenderFemale)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Proposal.BestColors.C4.Hex != "#C19A6B" {
		t.Errorf("unexpected result %+v", result.Proposal.BestColors)
	}
	if atomic.LoadInt32(&hits) != 3 {
		t.Errorf("expected 3 provider calls, got %d", hits)
	}
	if slept < 3*time.Second {
		t.Errorf("expected at least 3s of backoff, got %v", slept)
	}
}

func slowImageServer(t *testing.T, delay time.Duration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(delay):
			w.Header().Set("Content-Type", "image/png")
			w.Write(pngHeader)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDiagnose_TimeoutDuringFetchIsExhaustedRetries(t *testing.T) {
	srv := slowImageServer(t, 2*time.Second)
	exec := &fakeExecutor{text: sampleJSON(t)}
	cfg := testConfig()
	cfg.Timeout = 100 * time.Millisecond

	_, err := NewPipeline(exec, media.NewFetcher(10*time.Second), cfg).
		Diagnose(context.Background(), srv.URL+"/front.png", SubjectProfile{Identifier: "u1"}, GenderFemale)

	var ere *gemini.ExhaustedRetriesError
	if !errors.As(err, &ere) {
		t.Fatalf("expected ExhaustedRetriesError, got %T: %v", err, err)
	}
	if !ere.Timeout() {
		t.Errorf("expected a timeout cause, got %v", ere.Cause)
	}
	if code := gemini.CodeOf(err); code != gemini.CodeExhaustedRetries {
		t.Errorf("expected code %s, got %s", gemini.CodeExhaustedRetries, code)
	}
	if exec.calls != 0 {
		t.Errorf("expected no AI call, got %d", exec.calls)
	}
}
