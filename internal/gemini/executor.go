package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/hair-diagnosis-helper/internal/logging"
)

// DefaultBaseDelay is the backoff before the second attempt.
const DefaultBaseDelay = 1000 * time.Millisecond

// maxResponseBytes caps how much of a provider response is read.
const maxResponseBytes = 64 << 20

// Sleeper waits for d or until ctx is done, returning ctx.Err() in the latter case.
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleep is the production Sleeper.
func ContextSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Response is a successful provider response.
type Response struct {
	StatusCode int
	Body       json.RawMessage
	Attempts   int
}

// Executor POSTs JSON payloads to a provider endpoint, retrying transient
// failures with exponential backoff. It holds no per-call state and is safe
// for concurrent use.
type Executor struct {
	client    *http.Client
	baseDelay time.Duration
	sleep     Sleeper
}

// Option configures an Executor.
type Option func(*Executor)

// WithHTTPClient sets the HTTP client used for provider calls.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Executor) { e.client = c }
}

// WithBaseDelay sets the first backoff delay. Each later retry doubles it.
func WithBaseDelay(d time.Duration) Option {
	return func(e *Executor) { e.baseDelay = d }
}

// WithSleeper replaces the backoff sleeper.
func WithSleeper(s Sleeper) Option {
	return func(e *Executor) { e.sleep = s }
}

// NewExecutor creates an Executor.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		client:    &http.Client{Timeout: 120 * time.Second},
		baseDelay: DefaultBaseDelay,
		sleep:     ContextSleep,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BaseDelay returns the configured first backoff delay.
func (e *Executor) BaseDelay() time.Duration { return e.baseDelay }

// Execute sends payload to endpoint, making at most maxAttempts attempts.
//
// A 2xx response whose body is JSON is returned at once; a non-JSON 2xx body
// is a MalformedAIResponseError. Statuses 429, 500 and 503, network errors and
// timeouts are retried after a backoff that starts at the base delay and
// doubles each time. Any other status fails immediately with NonRetriableError.
// When attempts run out, or ctx expires, the result is ExhaustedRetriesError.
func (e *Executor) Execute(ctx context.Context, endpoint string, payload any, maxAttempts int) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	redacted := logging.RedactURL(endpoint)
	delay := e.baseDelay
	lastStatus := 0
	var lastErr error

	attempt := 0
	for attempt < maxAttempts {
		attempt++
		log.Info().
			Int("attempt", attempt).
			Int("maxAttempts", maxAttempts).
			Str("endpoint", redacted).
			Int("payloadBytes", len(body)).
			Msg("Sending AI request")

		status, respBody, err := e.post(ctx, endpoint, body)
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				log.Warn().Int("attempt", attempt).Err(ctxErr).Msg("AI request deadline exceeded")
				return nil, NewDeadlineError(attempt, lastStatus, ctxErr)
			}
			lastStatus, lastErr = 0, err
			log.Warn().Int("attempt", attempt).Err(err).Msg("AI request failed with network error")

		case status >= 200 && status < 300:
			if !json.Valid(respBody) {
				return nil, &MalformedAIResponseError{
					Raw:    truncateString(string(respBody), 1000),
					Reason: "response body is not JSON",
				}
			}
			log.Info().Int("attempt", attempt).Int("status", status).Int("responseBytes", len(respBody)).Msg("AI request succeeded")
			return &Response{StatusCode: status, Body: respBody, Attempts: attempt}, nil

		case isRetriable(status):
			lastStatus = status
			lastErr = fmt.Errorf("status %d: %s", status, truncateString(string(respBody), 200))
			log.Warn().Int("attempt", attempt).Int("status", status).Msg("AI request returned retriable status")

		default:
			log.Error().
				Int("attempt", attempt).
				Int("status", status).
				Str("body", truncateString(string(respBody), 500)).
				Msg("AI request returned non-retriable status")
			return nil, &NonRetriableError{Status: status, Body: string(respBody)}
		}

		if attempt >= maxAttempts {
			break
		}
		log.Info().Int("attempt", attempt).Dur("delay", delay).Msg("Backing off before retry")
		if err := e.sleep(ctx, delay); err != nil {
			return nil, NewDeadlineError(attempt, lastStatus, err)
		}
		delay *= 2
	}

	log.Error().Int("attempts", attempt).Int("lastStatus", lastStatus).Msg("AI request retries exhausted")
	return nil, &ExhaustedRetriesError{Attempts: attempt, LastStatus: lastStatus, Cause: lastErr}
}

func (e *Executor) post(ctx context.Context, endpoint string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		// url.Error embeds the full URL, including the key.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			return 0, nil, fmt.Errorf("HTTP %s failed: %w", uerr.Op, uerr.Err)
		}
		return 0, nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

func isRetriable(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusServiceUnavailable:
		return true
	}
	return false
}
