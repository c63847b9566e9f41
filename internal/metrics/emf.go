// Package metrics emits AWS CloudWatch Embedded Metrics Format (EMF) documents.
// Each flush writes one JSON line; CloudWatch Logs extracts the metrics from it
// when the process runs in Lambda, and locally the lines are plain structured logs.
//
// See: https://docs.aws.amazon.com/AmazonCloudWatch/latest/monitoring/CloudWatch_Embedded_Metric_Format_Specification.html
package metrics

import (
	"encoding/json"
	"io"
	"maps"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Namespace is the CloudWatch namespace for every metric this service emits.
const Namespace = "HairDiagnosis"

// CloudWatch metric units used by this service.
const (
	UnitMilliseconds = "Milliseconds"
	UnitCount        = "Count"
	UnitBytes        = "Bytes"
)

type metricDef struct {
	Name string `json:"Name"`
	Unit string `json:"Unit"`
}

type directive struct {
	Timestamp         int64       `json:"Timestamp"`
	CloudWatchMetrics []metricSet `json:"CloudWatchMetrics"`
}

type metricSet struct {
	Namespace  string      `json:"Namespace"`
	Dimensions [][]string  `json:"Dimensions"`
	Metrics    []metricDef `json:"Metrics"`
}

// Recorder accumulates one EMF document. It is not safe for concurrent use;
// create one per request or AI call.
type Recorder struct {
	namespace  string
	dimensions map[string]string
	units      map[string]string
	fields     map[string]any
}

var (
	functionName string
	initOnce     sync.Once

	outMu sync.Mutex
	out   io.Writer = os.Stdout
)

// SetOutput redirects flushed documents to w and returns the previous writer.
func SetOutput(w io.Writer) io.Writer {
	outMu.Lock()
	defer outMu.Unlock()
	prev := out
	out = w
	return prev
}

// New creates a Recorder. Inside Lambda the FunctionName dimension is added.
func New(namespace string) *Recorder {
	initOnce.Do(func() { functionName = os.Getenv("AWS_LAMBDA_FUNCTION_NAME") })
	r := &Recorder{
		namespace:  namespace,
		dimensions: make(map[string]string),
		units:      make(map[string]string),
		fields:     make(map[string]any),
	}
	if functionName != "" {
		r.dimensions["FunctionName"] = functionName
	}
	return r
}

func (r *Recorder) Dimension(key, value string) *Recorder {
	r.dimensions[key] = value
	return r
}

// Metric records value under name. Recording the same name twice keeps the
// last value.
func (r *Recorder) Metric(name string, value float64, unit string) *Recorder {
	r.units[name] = unit
	r.fields[name] = value
	return r
}

// Count records a count metric of 1.
func (r *Recorder) Count(name string) *Recorder {
	return r.Metric(name, 1, UnitCount)
}

// Property adds a searchable field that does not become a CloudWatch metric.
func (r *Recorder) Property(key string, value any) *Recorder {
	if _, isMetric := r.units[key]; !isMetric {
		r.fields[key] = value
	}
	return r
}

func (r *Recorder) document(now time.Time) map[string]any {
	defs := make([]metricDef, 0, len(r.units))
	for _, name := range slices.Sorted(maps.Keys(r.units)) {
		defs = append(defs, metricDef{Name: name, Unit: r.units[name]})
	}
	doc := make(map[string]any, len(r.fields)+len(r.dimensions)+1)
	maps.Copy(doc, r.fields)
	for k, v := range r.dimensions {
		doc[k] = v
	}
	doc["_aws"] = directive{
		Timestamp: now.UnixMilli(),
		CloudWatchMetrics: []metricSet{{
			Namespace:  r.namespace,
			Dimensions: [][]string{slices.Sorted(maps.Keys(r.dimensions))},
			Metrics:    defs,
		}},
	}
	return doc
}

// Flush writes the document as a single JSON line. A recorder without
// metrics writes nothing.
func (r *Recorder) Flush() {
	if len(r.units) == 0 {
		return
	}
	data, err := json.Marshal(r.document(time.Now()))
	if err != nil {
		log.Warn().Err(err).Str("namespace", r.namespace).Msg("Failed to marshal EMF document")
		return
	}
	data = append(data, '\n')

	outMu.Lock()
	defer outMu.Unlock()
	_, _ = out.Write(data)
}
