package clerk

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/goliatone/go-identity-sync/core"
)

const ProviderID = "clerk"

const (
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"
)

var eventKinds = map[string]core.EventKind{
	EventUserCreated: core.EventKindUserCreated,
	EventUserUpdated: core.EventKindUserUpdated,
	EventUserDeleted: core.EventKindUserDeleted,
}

type envelope struct {
	Type      string      `json:"type"`
	Object    string      `json:"object"`
	Timestamp int64       `json:"timestamp"`
	Data      userPayload `json:"data"`
}

// Optional profile fields stay raw so an absent key can be told apart from
// an explicit null.
type userPayload struct {
	ID             string          `json:"id"`
	Deleted        bool            `json:"deleted"`
	EmailAddresses []emailAddress  `json:"email_addresses"`
	FirstName      json.RawMessage `json:"first_name"`
	LastName       json.RawMessage `json:"last_name"`
	ImageURL       json.RawMessage `json:"image_url"`
	UpdatedAt      *int64          `json:"updated_at"`
}

type emailAddress struct {
	ID           string  `json:"id"`
	EmailAddress *string `json:"email_address"`
}

type Normalizer struct{}

func NewNormalizer() Normalizer {
	return Normalizer{}
}

func (Normalizer) ProviderID() string {
	return ProviderID
}

func (Normalizer) EventType(body []byte) string {
	return EventType(body)
}

// EventType extracts the raw Clerk event type without validating the rest of
// the payload. It returns "" when the body is not a JSON object.
func EventType(body []byte) string {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		return ""
	}
	return strings.TrimSpace(head.Type)
}

func (n Normalizer) Normalize(env core.VerifiedEnvelope) (core.CanonicalEvent, error) {
	if len(bytes.TrimSpace(env.Body)) == 0 {
		return core.CanonicalEvent{}, core.NormalizeError(core.ErrorNormalizeMalformed, "providers/clerk: empty payload", nil)
	}
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(env.Body, &head); err != nil {
		return core.CanonicalEvent{}, core.NormalizeError(
			core.ErrorNormalizeMalformed,
			"providers/clerk: malformed payload",
			map[string]any{"provider_id": ProviderID, "detail": err.Error()},
		)
	}
	// Kinds outside the user lifecycle are acknowledged before the user
	// schema is applied to their data.
	eventType := strings.TrimSpace(head.Type)
	if eventType == "" {
		return core.CanonicalEvent{}, core.NormalizeError(
			core.ErrorNormalizeMalformed,
			"providers/clerk: malformed payload",
			map[string]any{"provider_id": ProviderID, "detail": "type is required"},
		)
	}
	kind, ok := eventKinds[eventType]
	if !ok {
		return core.CanonicalEvent{}, core.UnsupportedKindError(ProviderID, eventType)
	}

	if err := validateEnvelope(env.Body); err != nil {
		return core.CanonicalEvent{}, core.NormalizeError(
			core.ErrorNormalizeMalformed,
			"providers/clerk: malformed payload",
			map[string]any{"provider_id": ProviderID, "detail": err.Error()},
		)
	}

	var payload envelope
	if err := json.Unmarshal(env.Body, &payload); err != nil {
		return core.CanonicalEvent{}, core.NormalizeError(
			core.ErrorNormalizeMalformed,
			"providers/clerk: malformed payload",
			map[string]any{"provider_id": ProviderID, "detail": err.Error()},
		)
	}

	subjectID := strings.TrimSpace(payload.Data.ID)
	if subjectID == "" {
		return core.CanonicalEvent{}, core.MissingFieldError(ProviderID, "data.id")
	}

	occurredAt := resolveOccurredAt(payload, env.Timestamp)
	if occurredAt.IsZero() {
		return core.CanonicalEvent{}, core.MissingFieldError(ProviderID, "timestamp")
	}

	event := core.CanonicalEvent{
		EventID:    strings.TrimSpace(env.DeliveryID),
		ProviderID: ProviderID,
		Kind:       kind,
		SubjectID:  subjectID,
		OccurredAt: occurredAt,
	}
	if event.EventID == "" {
		return core.CanonicalEvent{}, core.MissingFieldError(ProviderID, "delivery_id")
	}
	if kind == core.EventKindUserDeleted {
		return event, nil
	}

	attributes, err := profileAttributes(payload.Data)
	if err != nil {
		return core.CanonicalEvent{}, err
	}
	event.Attributes = attributes
	return event, nil
}

// resolveOccurredAt prefers the envelope timestamp, then the user's
// updated_at, then the signed delivery timestamp.
func resolveOccurredAt(payload envelope, fallback time.Time) time.Time {
	if payload.Timestamp > 0 {
		return time.UnixMilli(payload.Timestamp).UTC()
	}
	if payload.Data.UpdatedAt != nil && *payload.Data.UpdatedAt > 0 {
		return time.UnixMilli(*payload.Data.UpdatedAt).UTC()
	}
	if !fallback.IsZero() {
		return fallback.UTC()
	}
	return time.Time{}
}

// The first listed address is treated as primary.
func profileAttributes(data userPayload) (core.Attributes, error) {
	if len(data.EmailAddresses) == 0 {
		return nil, core.MissingFieldError(ProviderID, "data.email_addresses")
	}
	first := data.EmailAddresses[0].EmailAddress
	if first == nil || strings.TrimSpace(*first) == "" {
		return nil, core.MissingFieldError(ProviderID, "data.email_addresses[0].email_address")
	}

	attributes := core.Attributes{
		core.AttributeEmail: strings.TrimSpace(*first),
	}
	for key, raw := range map[string]json.RawMessage{
		core.AttributeFirstName: data.FirstName,
		core.AttributeLastName:  data.LastName,
		core.AttributeImageURL:  data.ImageURL,
	} {
		value, present, err := optionalString(raw)
		if err != nil {
			return nil, core.NormalizeError(
				core.ErrorNormalizeMalformed,
				"providers/clerk: malformed "+key,
				map[string]any{"provider_id": ProviderID, "field": key},
			)
		}
		if present {
			attributes[key] = value
		}
	}
	return attributes, nil
}

func optionalString(raw json.RawMessage) (string, bool, error) {
	if len(raw) == 0 {
		return "", false, nil
	}
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return "", true, nil
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", false, err
	}
	return value, true, nil
}

var _ core.Normalizer = Normalizer{}
