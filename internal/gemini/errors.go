package gemini

import (
	"errors"
	"fmt"
)

// ConfigurationError reports a credential or setting that must be present
// before a provider call can be made. It is returned on the first request
// that needs the missing value, never at startup.
type ConfigurationError struct {
	Credential string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s is not set", e.Credential)
}

// ExhaustedRetriesError is returned when every attempt ended in a retriable
// failure, or when the call deadline expired first. LastStatus is 0 when the
// last failure was a network error or timeout.
type ExhaustedRetriesError struct {
	Attempts   int
	LastStatus int
	Cause      error
}

func (e *ExhaustedRetriesError) Error() string {
	msg := fmt.Sprintf("AI request failed after %d attempt(s)", e.Attempts)
	if e.LastStatus != 0 {
		msg += fmt.Sprintf(" (last status %d)", e.LastStatus)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ExhaustedRetriesError) Unwrap() error { return e.Cause }

// Timeout reports whether the retries ended because the deadline expired.
func (e *ExhaustedRetriesError) Timeout() bool {
	return errors.Is(e.Cause, errTimeout)
}

// NewDeadlineError returns the ExhaustedRetriesError reported when the call
// deadline expires, whether during a request, a backoff, or before the first
// attempt such as while the input image is still being fetched.
func NewDeadlineError(attempts, lastStatus int, cause error) *ExhaustedRetriesError {
	return &ExhaustedRetriesError{Attempts: attempts, LastStatus: lastStatus, Cause: fmt.Errorf("%w: %w", errTimeout, cause)}
}

// NonRetriableError is a provider response with a status that retrying
// cannot fix (4xx other than 429, and 5xx other than 500/503).
type NonRetriableError struct {
	Status int
	Body   string
}

func (e *NonRetriableError) Error() string {
	return fmt.Sprintf("AI request rejected with status %d: %s", e.Status, truncateString(e.Body, 200))
}

// MalformedAIResponseError is a successful provider response whose content
// does not satisfy the expected structure.
type MalformedAIResponseError struct {
	Raw    string
	Reason string
	Cause  error
}

func (e *MalformedAIResponseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("malformed AI response: %s: %v", e.Reason, e.Cause)
	}
	return "malformed AI response: " + e.Reason
}

func (e *MalformedAIResponseError) Unwrap() error { return e.Cause }

// MissingImageDataError is an image-modality response with no inline image part.
type MissingImageDataError struct {
	Text string // any text the model returned instead
}

func (e *MissingImageDataError) Error() string {
	if e.Text != "" {
		return "no image data in AI response (text: " + truncateString(e.Text, 200) + ")"
	}
	return "no image data in AI response"
}

var errTimeout = errors.New("AI request deadline exceeded")

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
