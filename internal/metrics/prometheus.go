package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusObserver records observations into Prometheus collectors.
type PrometheusObserver struct {
	edits        *prometheus.CounterVec
	editDuration *prometheus.HistogramVec
	requests     *prometheus.CounterVec
	reqDuration  *prometheus.HistogramVec
}

var _ Observer = (*PrometheusObserver)(nil)

// NewPrometheusObserver creates the collectors and registers them with reg.
func NewPrometheusObserver(reg prometheus.Registerer) (*PrometheusObserver, error) {
	o := &PrometheusObserver{
		edits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mystic_edits_total",
				Help: "Total number of image edits by outcome",
			},
			[]string{"outcome"},
		),
		editDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "mystic_edit_duration_seconds",
				Help: "Duration of image edit calls",
				// Image generation typically takes 10-30s.
				Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120},
			},
			[]string{"outcome"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mystic_http_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		reqDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mystic_http_request_duration_seconds",
				Help:    "Duration of API requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
	}

	for _, c := range []prometheus.Collector{o.edits, o.editDuration, o.requests, o.reqDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// ObserveEdit implements Observer.
func (o *PrometheusObserver) ObserveEdit(outcome string, d time.Duration) {
	o.edits.WithLabelValues(outcome).Inc()
	o.editDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveRequest implements Observer.
func (o *PrometheusObserver) ObserveRequest(method, endpoint string, status int, d time.Duration) {
	o.requests.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	o.reqDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}
