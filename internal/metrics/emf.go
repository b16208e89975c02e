// Package metrics records edit and request metrics. Two backends are provided:
// CloudWatch Embedded Metric Format (EMF) lines for Lambda, where CloudWatch
// extracts metrics from structured log lines, and Prometheus collectors for the
// long-running web server.
//
// See: https://docs.aws.amazon.com/AmazonCloudWatch/latest/monitoring/CloudWatch_Embedded_Metric_Format_Specification.html
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"
)

// Standard CloudWatch metric units.
const (
	UnitMilliseconds = "Milliseconds"
	UnitCount        = "Count"
	UnitBytes        = "Bytes"
	UnitNone         = "None"
)

// Namespace is the CloudWatch namespace used for all EMF metrics.
const Namespace = "MysticStudio"

// metricDef holds the name and unit for a single metric.
type metricDef struct {
	Name string `json:"Name"`
	Unit string `json:"Unit"`
}

// emfDirective is the _aws metadata block required by EMF.
type emfDirective struct {
	Timestamp         int64      `json:"Timestamp"`
	CloudWatchMetrics []cwMetric `json:"CloudWatchMetrics"`
}

// cwMetric defines a CloudWatch metric namespace, dimensions, and metric definitions.
type cwMetric struct {
	Namespace  string      `json:"Namespace"`
	Dimensions [][]string  `json:"Dimensions"`
	Metrics    []metricDef `json:"Metrics"`
}

// Recorder accumulates dimensions, metrics, and properties for a single EMF flush.
// It is NOT safe for concurrent use from multiple goroutines; create one per operation.
type Recorder struct {
	out        io.Writer
	namespace  string
	dimensions map[string]string
	metrics    map[string]metricDef
	values     map[string]interface{}
	properties map[string]interface{}
}

var (
	// functionName is cached from AWS_LAMBDA_FUNCTION_NAME at first use.
	functionName string
	initOnce     sync.Once
)

func initFunctionName() {
	functionName = os.Getenv("AWS_LAMBDA_FUNCTION_NAME")
}

// New creates a Recorder that writes to stdout.
func New(namespace string) *Recorder {
	return NewTo(os.Stdout, namespace)
}

// NewTo creates a Recorder that writes its EMF line to out. The FunctionName
// dimension is added automatically inside Lambda.
func NewTo(out io.Writer, namespace string) *Recorder {
	initOnce.Do(initFunctionName)
	r := &Recorder{
		out:        out,
		namespace:  namespace,
		dimensions: make(map[string]string),
		metrics:    make(map[string]metricDef),
		values:     make(map[string]interface{}),
		properties: make(map[string]interface{}),
	}
	if functionName != "" {
		r.dimensions["FunctionName"] = functionName
	}
	return r
}

// Dimension adds a dimension key-value pair. Dimensions are indexed in CloudWatch
// and appear as filterable attributes on the metric.
func (r *Recorder) Dimension(key, value string) *Recorder {
	r.dimensions[key] = value
	return r
}

// Metric records a named metric value with a CloudWatch unit.
func (r *Recorder) Metric(name string, value float64, unit string) *Recorder {
	r.metrics[name] = metricDef{Name: name, Unit: unit}
	r.values[name] = value
	return r
}

// Count is a convenience for recording a count metric (value = 1).
func (r *Recorder) Count(name string) *Recorder {
	return r.Metric(name, 1, UnitCount)
}

// Property adds a non-metric field to the EMF document. Properties are searchable
// in CloudWatch Logs Insights but do not create CloudWatch metrics.
func (r *Recorder) Property(key string, value interface{}) *Recorder {
	r.properties[key] = value
	return r
}

// Flush serializes the EMF document as a single JSON line.
// After flushing, the Recorder should not be reused.
func (r *Recorder) Flush() {
	if len(r.metrics) == 0 {
		return
	}

	doc := make(map[string]interface{})

	metricDefs := make([]metricDef, 0, len(r.metrics))
	for _, m := range r.metrics {
		metricDefs = append(metricDefs, m)
	}
	sort.Slice(metricDefs, func(i, j int) bool { return metricDefs[i].Name < metricDefs[j].Name })

	dimKeys := make([]string, 0, len(r.dimensions))
	for k := range r.dimensions {
		dimKeys = append(dimKeys, k)
	}
	sort.Strings(dimKeys)

	doc["_aws"] = emfDirective{
		Timestamp: time.Now().UnixMilli(),
		CloudWatchMetrics: []cwMetric{{
			Namespace:  r.namespace,
			Dimensions: [][]string{dimKeys},
			Metrics:    metricDefs,
		}},
	}

	for k, v := range r.dimensions {
		doc[k] = v
	}
	for k, v := range r.values {
		doc[k] = v
	}
	for k, v := range r.properties {
		doc[k] = v
	}

	data, err := json.Marshal(doc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "emf: failed to marshal metrics: %v\n", err)
		return
	}

	// EMF must be a single line.
	fmt.Fprintln(r.out, string(data))
}

// EMFObserver is an Observer that emits one EMF line per observation.
type EMFObserver struct {
	out io.Writer
	mu  sync.Mutex
}

var _ Observer = (*EMFObserver)(nil)

// NewEMFObserver returns an observer writing EMF lines to out (stdout if nil).
func NewEMFObserver(out io.Writer) *EMFObserver {
	if out == nil {
		out = os.Stdout
	}
	return &EMFObserver{out: out}
}

// ObserveEdit implements Observer.
func (o *EMFObserver) ObserveEdit(outcome string, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	NewTo(o.out, Namespace).
		Dimension("Outcome", outcome).
		Metric("EditLatencyMs", float64(d.Milliseconds()), UnitMilliseconds).
		Count("EditCount").
		Flush()
}

// ObserveRequest implements Observer.
func (o *EMFObserver) ObserveRequest(method, endpoint string, status int, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	NewTo(o.out, Namespace).
		Dimension("Endpoint", endpoint).
		Metric("RequestLatencyMs", float64(d.Milliseconds()), UnitMilliseconds).
		Count("RequestCount").
		Property("method", method).
		Property("statusCode", status).
		Flush()
}
