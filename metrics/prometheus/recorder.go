// Package prometheus exports core.MetricsRecorder samples as Prometheus
// counter and histogram vectors.
package prometheus

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/goliatone/go-identity-sync/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Labels is the fixed label set. Tags outside it are dropped and missing
// ones are exported as "".
var Labels = []string{"operation", "status", "provider_id", "outcome", "reason", "error_code"}

// DurationBuckets are in milliseconds.
var DurationBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

type Recorder struct {
	namespace  string
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

type Option func(*Recorder)

// WithRegistry registers collectors on registry and serves it from Handler.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(r *Recorder) {
		if registry == nil {
			return
		}
		r.registerer = registry
		r.gatherer = registry
	}
}

func NewRecorder(namespace string, opts ...Option) *Recorder {
	recorder := &Recorder{
		namespace:  sanitizeName(namespace),
		registerer: prometheus.DefaultRegisterer,
		gatherer:   prometheus.DefaultGatherer,
		counters:   map[string]*prometheus.CounterVec{},
		histograms: map[string]*prometheus.HistogramVec{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(recorder)
		}
	}
	return recorder
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value < 0 {
		return
	}
	counter, err := r.counter(r.metricName(name))
	if err != nil {
		return
	}
	counter.WithLabelValues(labelValues(tags)...).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	histogram, err := r.histogram(r.metricName(name))
	if err != nil {
		return
	}
	histogram.WithLabelValues(labelValues(tags)...).Observe(value)
}

// Handler serves the gatherer the recorder registers on.
func (r *Recorder) Handler() http.Handler {
	if r == nil || r.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

func (r *Recorder) counter(name string) (*prometheus.CounterVec, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.counters[name]; ok {
		return existing, nil
	}
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: name,
		Help: "Count of " + strings.ReplaceAll(name, "_", " ") + ".",
	}, Labels)
	if err := r.registerer.Register(vec); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, fmt.Errorf("metrics/prometheus: register %s: %w", name, err)
		}
		shared, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, fmt.Errorf("metrics/prometheus: %s registered with another type", name)
		}
		vec = shared
	}
	r.counters[name] = vec
	return vec, nil
}

func (r *Recorder) histogram(name string) (*prometheus.HistogramVec, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.histograms[name]; ok {
		return existing, nil
	}
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    name,
		Help:    "Distribution of " + strings.ReplaceAll(name, "_", " ") + ".",
		Buckets: DurationBuckets,
	}, Labels)
	if err := r.registerer.Register(vec); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, fmt.Errorf("metrics/prometheus: register %s: %w", name, err)
		}
		shared, ok := already.ExistingCollector.(*prometheus.HistogramVec)
		if !ok {
			return nil, fmt.Errorf("metrics/prometheus: %s registered with another type", name)
		}
		vec = shared
	}
	r.histograms[name] = vec
	return vec, nil
}

// metricName maps identity_sync.reconcile.total onto identity_sync_reconcile_total
// and swaps the default prefix for the configured namespace.
func (r *Recorder) metricName(name string) string {
	name = sanitizeName(name)
	defaultPrefix := core.MetricPrefix + "_"
	if r.namespace == "" || r.namespace == core.MetricPrefix {
		return name
	}
	if strings.HasPrefix(name, defaultPrefix) {
		return r.namespace + "_" + strings.TrimPrefix(name, defaultPrefix)
	}
	return r.namespace + "_" + name
}

func labelValues(tags map[string]string) []string {
	values := make([]string, len(Labels))
	for i, label := range Labels {
		values[i] = tags[label]
	}
	return values
}

func sanitizeName(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == ':':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

var _ core.MetricsRecorder = (*Recorder)(nil)
