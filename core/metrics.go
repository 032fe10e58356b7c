package core

import (
	"context"
	"strings"
)

// MetricPrefix namespaces every metric the sync engine emits.
const MetricPrefix = "identity_sync"

// NopMetricsRecorder drops every observation. Pipelines fall back to it when
// no exporter is configured.
type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

// MetricName joins an operation and a measurement under MetricPrefix, as in
// identity_sync.webhook.total.
func MetricName(operation, measurement string) string {
	return MetricPrefix + "." + strings.TrimSpace(operation) + "." + strings.TrimSpace(measurement)
}

var _ MetricsRecorder = NopMetricsRecorder{}
