package gemini

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validBody = `{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`

// recordingSleeper records requested delays without sleeping.
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func (r *recordingSleeper) Total() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total time.Duration
	for _, d := range r.delays {
		total += d
	}
	return total
}

// sequenceServer answers with the given statuses in order, repeating the last one.
func sequenceServer(t *testing.T, statuses ...int) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(&hits, 1)) - 1
		if n >= len(statuses) {
			n = len(statuses) - 1
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statuses[n])
		if statuses[n] == http.StatusOK {
			w.Write([]byte(validBody))
			return
		}
		fmt.Fprintf(w, `{"error":{"code":%d,"message":%q}}`, statuses[n], http.StatusText(statuses[n]))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestExecute_RetriesThenSucceeds(t *testing.T) {
	srv, hits := sequenceServer(t, 503, 503, 200)
	sleeper := &recordingSleeper{}
	exec := NewExecutor(WithSleeper(sleeper.Sleep), WithBaseDelay(time.Second))

	resp, err := exec.Execute(context.Background(), srv.URL, map[string]string{"a": "b"}, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Attempts)
	assert.Equal(t, int32(3), atomic.LoadInt32(hits))
	assert.JSONEq(t, validBody, string(resp.Body))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.delays)
	assert.GreaterOrEqual(t, sleeper.Total(), 3000*time.Millisecond)
}

func TestExecute_NonRetriableFailsImmediately(t *testing.T) {
	srv, hits := sequenceServer(t, 400)
	sleeper := &recordingSleeper{}
	exec := NewExecutor(WithSleeper(sleeper.Sleep))

	_, err := exec.Execute(context.Background(), srv.URL, struct{}{}, 3)
	var nre *NonRetriableError
	require.ErrorAs(t, err, &nre)
	assert.Equal(t, 400, nre.Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
	assert.Zero(t, sleeper.Total())
}

func TestExecute_ExhaustsRetries(t *testing.T) {
	srv, hits := sequenceServer(t, 500)
	sleeper := &recordingSleeper{}
	exec := NewExecutor(WithSleeper(sleeper.Sleep), WithBaseDelay(2*time.Second))

	_, err := exec.Execute(context.Background(), srv.URL, struct{}{}, 3)
	var ere *ExhaustedRetriesError
	require.ErrorAs(t, err, &ere)
	assert.Equal(t, 3, ere.Attempts)
	assert.Equal(t, 500, ere.LastStatus)
	assert.False(t, ere.Timeout())
	assert.Equal(t, int32(3), atomic.LoadInt32(hits))
	// No sleep after the final attempt.
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleeper.delays)
}

func TestExecute_TooManyRequestsIsRetriable(t *testing.T) {
	srv, hits := sequenceServer(t, 429, 200)
	sleeper := &recordingSleeper{}
	exec := NewExecutor(WithSleeper(sleeper.Sleep))

	resp, err := exec.Execute(context.Background(), srv.URL, struct{}{}, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Attempts)
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))
	assert.Equal(t, []time.Duration{DefaultBaseDelay}, sleeper.delays)
}

func TestExecute_OtherServerErrorsAreNotRetried(t *testing.T) {
	for _, status := range []int{401, 403, 404, 502, 504} {
		srv, hits := sequenceServer(t, status, 200)
		exec := NewExecutor(WithSleeper((&recordingSleeper{}).Sleep))

		_, err := exec.Execute(context.Background(), srv.URL, struct{}{}, 3)
		var nre *NonRetriableError
		require.ErrorAs(t, err, &nre, "status %d", status)
		assert.Equal(t, int32(1), atomic.LoadInt32(hits), "status %d", status)
	}
}

func TestExecute_MaxAttemptsBound(t *testing.T) {
	for _, limit := range []int{1, 2, 5} {
		srv, hits := sequenceServer(t, 503)
		exec := NewExecutor(WithSleeper((&recordingSleeper{}).Sleep))

		_, err := exec.Execute(context.Background(), srv.URL, struct{}{}, limit)
		var ere *ExhaustedRetriesError
		require.ErrorAs(t, err, &ere)
		assert.Equal(t, int32(limit), atomic.LoadInt32(hits))
	}
}

func TestExecute_ZeroAttempts(t *testing.T) {
	srv, hits := sequenceServer(t, 200)
	exec := NewExecutor()

	_, err := exec.Execute(context.Background(), srv.URL, struct{}{}, 0)
	var ere *ExhaustedRetriesError
	require.ErrorAs(t, err, &ere)
	assert.Equal(t, 0, ere.Attempts)
	assert.Equal(t, int32(0), atomic.LoadInt32(hits))
}

func TestExecute_NonJSONSuccessIsMalformed(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte("<html>gateway</html>"))
	}))
	defer srv.Close()
	exec := NewExecutor(WithSleeper((&recordingSleeper{}).Sleep))

	_, err := exec.Execute(context.Background(), srv.URL, struct{}{}, 3)
	var mre *MalformedAIResponseError
	require.ErrorAs(t, err, &mre)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestExecute_NetworkErrorIsRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := srv.URL
	srv.Close()

	sleeper := &recordingSleeper{}
	exec := NewExecutor(WithSleeper(sleeper.Sleep))

	_, err := exec.Execute(context.Background(), endpoint, struct{}{}, 2)
	var ere *ExhaustedRetriesError
	require.ErrorAs(t, err, &ere)
	assert.Equal(t, 2, ere.Attempts)
	assert.Equal(t, 0, ere.LastStatus)
	assert.Len(t, sleeper.delays, 1)
}

func TestExecute_DeadlineDuringBackoff(t *testing.T) {
	srv, hits := sequenceServer(t, 503)
	ctx, cancel := context.WithCancel(context.Background())
	exec := NewExecutor(WithSleeper(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	_, err := exec.Execute(ctx, srv.URL, struct{}{}, 3)
	var ere *ExhaustedRetriesError
	require.ErrorAs(t, err, &ere)
	assert.True(t, ere.Timeout())
	assert.Equal(t, 503, ere.LastStatus)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestExecute_ExpiredContext(t *testing.T) {
	srv, hits := sequenceServer(t, 200)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewExecutor().Execute(ctx, srv.URL, struct{}{}, 3)
	var ere *ExhaustedRetriesError
	require.ErrorAs(t, err, &ere)
	assert.True(t, ere.Timeout())
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, int32(0), atomic.LoadInt32(hits))
}

func TestContextSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	err := ContextSleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestExecute_DoesNotLogAPIKey(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = prev }()

	srv, _ := sequenceServer(t, 503, 200)
	exec := NewExecutor(WithSleeper((&recordingSleeper{}).Sleep))

	_, err := exec.Execute(context.Background(), srv.URL+"/models/m:generateContent?key=SUPERSECRET", struct{}{}, 3)
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "SUPERSECRET")
	assert.True(t, strings.Contains(buf.String(), `"attempt":2`))
}

func TestModelEndpoint(t *testing.T) {
	_, err := Model{Name: "m", Credential: "LLM_API_KEY"}.Endpoint()
	var ce *ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "LLM_API_KEY", ce.Credential)

	got, err := Model{BaseURL: "http://x/v1beta/", Name: "m", APIKey: "k y"}.Endpoint()
	require.NoError(t, err)
	assert.Equal(t, "http://x/v1beta/models/m:generateContent?key=k+y", got)

	got, err = Model{Name: "m", APIKey: "k"}.Endpoint()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, DefaultBaseURL))
}
