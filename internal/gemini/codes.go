package gemini

import "errors"

// Stable error codes reported to API clients.
const (
	CodeConfiguration    = "configuration_error"
	CodeImageFetch       = "image_fetch_error"
	CodeExhaustedRetries = "exhausted_retries"
	CodeNonRetriable     = "non_retriable"
	CodeMalformed        = "malformed_ai_response"
	CodeMissingImageData = "missing_image_data"
	CodeInvalidInput     = "invalid_input"
	CodeInternal         = "internal_error"
)

// Coded is implemented by errors that carry a stable client-facing code.
type Coded interface {
	error
	Code() string
}

func (e *ConfigurationError) Code() string       { return CodeConfiguration }
func (e *ExhaustedRetriesError) Code() string    { return CodeExhaustedRetries }
func (e *NonRetriableError) Code() string        { return CodeNonRetriable }
func (e *MalformedAIResponseError) Code() string { return CodeMalformed }
func (e *MissingImageDataError) Code() string    { return CodeMissingImageData }
func (e *InvalidInputError) Code() string        { return CodeInvalidInput }

// CodeOf returns the code of the first Coded error in err's chain, or
// CodeInternal. It returns "ok" for a nil error.
func CodeOf(err error) string {
	if err == nil {
		return "ok"
	}
	var c Coded
	if errors.As(err, &c) {
		return c.Code()
	}
	return CodeInternal
}

// InvalidInputError reports a pipeline request that is missing or has an
// invalid field. It is the caller's fault and is never retried.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return "invalid input: " + e.Field + " " + e.Reason
}

// AttemptsOf returns how many provider attempts a failed Execute made.
func AttemptsOf(err error) int {
	var ere *ExhaustedRetriesError
	if errors.As(err, &ere) {
		return ere.Attempts
	}
	return 1
}
