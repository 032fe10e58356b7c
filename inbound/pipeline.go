package inbound

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-identity-sync/core"
	glog "github.com/goliatone/go-logger/glog"
)

const loggerName = "identity_sync.inbound"

// EventTyper is implemented by normalizers that can report the provider's raw
// event type, used in responses and logs.
type EventTyper interface {
	EventType(body []byte) string
}

type Result struct {
	StatusCode int
	ProviderID string
	DeliveryID string
	EventType  string
	Event      *core.CanonicalEvent
	Outcome    core.Outcome
	Err        error
}

// Acknowledged reports whether the sender should stop retrying.
func (r Result) Acknowledged() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

type PipelineOption func(*Pipeline)

func WithPipelineLogger(logger core.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithPipelineLoggerProvider(provider core.LoggerProvider) PipelineOption {
	return func(p *Pipeline) {
		if provider != nil {
			p.loggerProvider = provider
		}
	}
}

func WithPipelineMetrics(recorder core.MetricsRecorder) PipelineOption {
	return func(p *Pipeline) {
		if recorder != nil {
			p.observer.Metrics = recorder
		}
	}
}

type Pipeline struct {
	sources    *core.SourceRegistry
	reconciler core.Reconciler
	observer   core.Observer

	logger         core.Logger
	loggerProvider core.LoggerProvider
}

func NewPipeline(sources *core.SourceRegistry, reconciler core.Reconciler, opts ...PipelineOption) (*Pipeline, error) {
	if sources == nil {
		return nil, fmt.Errorf("inbound: source registry is required")
	}
	if reconciler == nil {
		return nil, fmt.Errorf("inbound: reconciler is required")
	}
	p := &Pipeline{
		sources:    sources,
		reconciler: reconciler,
		observer:   core.NewObserver(nil, core.NopMetricsRecorder{}),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(p)
	}
	provider, logger := glog.Resolve(loggerName, p.loggerProvider, p.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger(loggerName); named != nil {
			logger = glog.Ensure(named)
		}
	}
	p.observer.Logger = logger
	return p, nil
}

// Process never returns a nil-status Result; Err is set for every non 2xx
// status and for soft rejections such as unsupported event kinds.
func (p *Pipeline) Process(ctx context.Context, req core.InboundRequest) (result Result) {
	startedAt := time.Now()
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	result = Result{ProviderID: req.ProviderID}
	defer func() {
		fields := map[string]any{
			"provider_id": result.ProviderID,
			"delivery_id": result.DeliveryID,
			"event_type":  result.EventType,
			"status_code": result.StatusCode,
		}
		if requestID, ok := req.Metadata["request_id"]; ok {
			fields["request_id"] = requestID
		}
		var observed error
		if result.StatusCode >= http.StatusBadRequest {
			observed = result.Err
		}
		if result.Err != nil && observed == nil {
			fields["note"] = result.Err.Error()
		}
		if result.Event != nil {
			fields["outcome"] = string(result.Outcome.Action)
			if result.Outcome.Reason != "" {
				fields["reason"] = string(result.Outcome.Reason)
			}
		}
		p.observer.Observe(ctx, startedAt, "delivery", observed, fields)
	}()

	source, ok := p.sources.Get(req.ProviderID)
	if !ok {
		return p.fail(result, inboundProviderNotFound(req.ProviderID))
	}

	envelope, err := source.Verifier.Verify(ctx, req)
	if err != nil {
		return p.fail(result, inboundInternal(err, "inbound: verification failed", map[string]any{
			"provider_id": req.ProviderID,
		}))
	}
	result.DeliveryID = envelope.DeliveryID
	if typer, ok := source.Normalizer.(EventTyper); ok {
		result.EventType = typer.EventType(envelope.Body)
	}

	event, err := source.Normalizer.Normalize(envelope)
	if err != nil {
		return p.fail(result, inboundInternal(err, "inbound: normalization failed", map[string]any{
			"provider_id": req.ProviderID,
			"delivery_id": envelope.DeliveryID,
		}))
	}
	if result.EventType == "" {
		result.EventType = string(event.Kind)
	}
	result.Event = &event

	outcome, err := p.reconciler.Reconcile(ctx, event)
	if err != nil {
		return p.fail(result, inboundInternal(err, "inbound: reconcile failed", map[string]any{
			"provider_id": req.ProviderID,
			"delivery_id": envelope.DeliveryID,
			"external_id": event.SubjectID,
		}))
	}
	result.Outcome = outcome
	result.StatusCode = http.StatusOK
	return result
}

func (p *Pipeline) fail(result Result, err error) Result {
	result.Err = err
	result.StatusCode = core.StatusFor(err)
	return result
}
