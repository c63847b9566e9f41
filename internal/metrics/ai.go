package metrics

import "time"

// AICall describes one completed pipeline call to the generative AI provider.
type AICall struct {
	Operation string // diagnose, synthesize, refine
	Model     string
	Attempts  int
	Latency   time.Duration
	Outcome   string // ok or an error code such as exhausted_retries
}

// RecordAICall emits the attempt count, latency and outcome of an AI call.
func RecordAICall(c AICall) {
	r := New(Namespace).
		Dimension("Operation", c.Operation).
		Metric("AIAttempts", float64(c.Attempts), UnitCount).
		Metric("AILatencyMs", float64(c.Latency.Milliseconds()), UnitMilliseconds).
		Property("model", c.Model).
		Property("outcome", c.Outcome)
	if c.Outcome == "ok" {
		r.Count("AICallSucceeded")
	} else {
		r.Count("AICallFailed")
	}
	r.Flush()
}

// RecordRequest emits per-endpoint HTTP request metrics.
func RecordRequest(endpoint, method string, status int, latency time.Duration) {
	r := New(Namespace).
		Dimension("Endpoint", endpoint).
		Metric("RequestLatencyMs", float64(latency.Milliseconds()), UnitMilliseconds).
		Count("RequestCount").
		Property("method", method).
		Property("statusCode", status)
	if status >= 400 {
		r.Count("RequestErrors")
	}
	r.Flush()
}
