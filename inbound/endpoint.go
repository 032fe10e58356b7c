package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goliatone/go-identity-sync/core"
	"github.com/google/uuid"
)

const HeaderRequestID = "X-Request-Id"

// ProviderResolver picks the provider id for a request, typically from a
// router path parameter.
type ProviderResolver func(r *http.Request) string

type EndpointOption func(*Endpoint)

func WithMaxBodyBytes(limit int64) EndpointOption {
	return func(e *Endpoint) {
		if limit > 0 {
			e.maxBodyBytes = limit
		}
	}
}

func WithProviderResolver(resolver ProviderResolver) EndpointOption {
	return func(e *Endpoint) {
		if resolver != nil {
			e.resolveProvider = resolver
		}
	}
}

// WithDefaultProvider names the provider used when the resolver yields none.
func WithDefaultProvider(providerID string) EndpointOption {
	return func(e *Endpoint) {
		e.defaultProvider = strings.TrimSpace(providerID)
	}
}

type Endpoint struct {
	pipeline        *Pipeline
	maxBodyBytes    int64
	resolveProvider ProviderResolver
	defaultProvider string
}

type Response struct {
	Success   bool   `json:"success"`
	Event     string `json:"event,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Error     string `json:"error,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func NewEndpoint(pipeline *Pipeline, opts ...EndpointOption) (*Endpoint, error) {
	if pipeline == nil {
		return nil, fmt.Errorf("inbound: pipeline is required")
	}
	e := &Endpoint{
		pipeline:     pipeline,
		maxBodyBytes: core.DefaultMaxBodyBytes,
		resolveProvider: func(r *http.Request) string {
			return r.PathValue("provider")
		},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(e)
	}
	return e, nil
}

func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := strings.TrimSpace(r.Header.Get(HeaderRequestID))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(HeaderRequestID, requestID)

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, Response{Error: "METHOD_NOT_ALLOWED", RequestID: requestID})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, e.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		message := "inbound: unable to read request body"
		if errors.As(err, &tooLarge) {
			message = "inbound: request body exceeds limit"
		}
		failure := inboundBadInput(message, map[string]any{"limit": e.maxBodyBytes})
		writeJSON(w, core.StatusFor(failure), Response{Error: core.TextCodeOf(failure), RequestID: requestID})
		return
	}

	providerID := strings.TrimSpace(e.resolveProvider(r))
	if providerID == "" {
		providerID = e.defaultProvider
	}

	// The sender may hang up; reconciliation still has to finish.
	ctx := context.WithoutCancel(r.Context())
	result := e.pipeline.Process(ctx, core.InboundRequest{
		ProviderID: providerID,
		Headers:    flattenHeaders(r.Header),
		Body:       body,
		Metadata: map[string]any{
			"request_id":  requestID,
			"remote_addr": r.RemoteAddr,
		},
	})

	writeJSON(w, result.StatusCode, responseFor(result, requestID))
}

func responseFor(result Result, requestID string) Response {
	response := Response{
		Success:   result.Acknowledged(),
		Event:     result.EventType,
		RequestID: requestID,
	}
	if result.Event != nil && result.Err == nil {
		response.Outcome = string(result.Outcome.Action)
		response.Reason = string(result.Outcome.Reason)
	}
	if result.Err != nil {
		response.Error = core.TextCodeOf(result.Err)
		if response.Error == "" {
			response.Error = core.ErrorInternal
		}
		if core.IsUnsupportedKind(result.Err) {
			response.Outcome = string(core.OutcomeIgnored)
			response.Reason = "unsupported_kind"
		}
	}
	return response
}

// flattenHeaders joins repeated values with a space, which is also how
// multiple svix signatures are listed in a single header.
func flattenHeaders(header http.Header) map[string]string {
	out := make(map[string]string, len(header))
	for key, values := range header {
		out[strings.ToLower(key)] = strings.Join(values, " ")
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
