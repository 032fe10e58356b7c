package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-identity-sync/core"
)

const (
	HeaderSvixID        = "svix-id"
	HeaderSvixTimestamp = "svix-timestamp"
	HeaderSvixSignature = "svix-signature"

	HeaderWebhookID        = "webhook-id"
	HeaderWebhookTimestamp = "webhook-timestamp"
	HeaderWebhookSignature = "webhook-signature"

	SecretPrefix     = "whsec_"
	SignatureVersion = "v1"
)

type SignatureConfig struct {
	ProviderID string
	Secret     string
	Tolerance  time.Duration
	Now        func() time.Time

	// Header names are matched case-insensitively. With no overrides the
	// svix-* triple is used when any svix-* header is present, otherwise the
	// webhook-* triple. Overrides form a single family, unset names default
	// to svix-*.
	IDHeader        string
	TimestampHeader string
	SignatureHeader string
}

// SignatureVerifier checks HMAC-SHA256 signatures over "{id}.{timestamp}.{body}".
type SignatureVerifier struct {
	providerID string
	key        []byte
	tolerance  time.Duration
	now        func() time.Time

	families []headerFamily
}

// headerFamily names the three headers of one signing scheme. A delivery is
// read from exactly one family.
type headerFamily struct {
	id        string
	timestamp string
	signature string
}

var (
	svixHeaders    = headerFamily{id: HeaderSvixID, timestamp: HeaderSvixTimestamp, signature: HeaderSvixSignature}
	webhookHeaders = headerFamily{id: HeaderWebhookID, timestamp: HeaderWebhookTimestamp, signature: HeaderWebhookSignature}
)

func NewSignatureVerifier(cfg SignatureConfig) (*SignatureVerifier, error) {
	key, err := DecodeSecret(cfg.Secret)
	if err != nil {
		return nil, err
	}
	tolerance := cfg.Tolerance
	if tolerance <= 0 {
		tolerance = core.DefaultClockSkewTolerance
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &SignatureVerifier{
		providerID: strings.TrimSpace(cfg.ProviderID),
		key:        key,
		tolerance:  tolerance,
		now:        now,
		families:   headerFamilies(cfg),
	}, nil
}

// Verify implements core.Verifier.
func (v *SignatureVerifier) Verify(_ context.Context, req core.InboundRequest) (core.VerifiedEnvelope, error) {
	if v == nil || len(v.key) == 0 {
		return core.VerifiedEnvelope{}, fmt.Errorf("webhooks: signature verifier is not configured")
	}
	family := selectFamily(req.Headers, v.families)
	deliveryID := headerValue(req.Headers, family.id)
	timestamp := headerValue(req.Headers, family.timestamp)
	signatures := headerValue(req.Headers, family.signature)
	if deliveryID == "" || timestamp == "" || signatures == "" {
		return core.VerifiedEnvelope{}, core.AuthError(
			core.ErrorAuthMissingHeaders,
			"webhooks: delivery id, timestamp and signature headers are required",
		)
	}

	sentAt, err := parseTimestamp(timestamp)
	if err != nil {
		return core.VerifiedEnvelope{}, core.AuthError(core.ErrorAuthBadSignature, "webhooks: invalid signature timestamp")
	}
	if skew := v.now().UTC().Sub(sentAt); skew > v.tolerance || skew < -v.tolerance {
		return core.VerifiedEnvelope{}, core.AuthError(core.ErrorAuthClockSkew, "webhooks: signature timestamp outside tolerance window")
	}

	expected := computeSignature(v.key, deliveryID, timestamp, req.Body)
	if !matchesAny(expected, signatures) {
		return core.VerifiedEnvelope{}, core.AuthError(core.ErrorAuthBadSignature, "webhooks: no matching signature")
	}

	providerID := strings.TrimSpace(req.ProviderID)
	if providerID == "" {
		providerID = v.providerID
	}
	return core.VerifiedEnvelope{
		ProviderID: providerID,
		DeliveryID: deliveryID,
		Timestamp:  sentAt,
		Body:       req.Body,
	}, nil
}

// Verify is the stateless form of SignatureVerifier.Verify.
func Verify(body []byte, headers map[string]string, secret string, now time.Time, tolerance time.Duration) (core.VerifiedEnvelope, error) {
	verifier, err := NewSignatureVerifier(SignatureConfig{
		Secret:    secret,
		Tolerance: tolerance,
		Now:       func() time.Time { return now },
	})
	if err != nil {
		return core.VerifiedEnvelope{}, err
	}
	return verifier.Verify(context.Background(), core.InboundRequest{Headers: headers, Body: body})
}

// Sign returns a "v1,<base64>" signature for the given delivery. Senders and
// tests use it to produce headers the verifier accepts.
func Sign(secret string, deliveryID string, timestamp time.Time, body []byte) (string, error) {
	key, err := DecodeSecret(secret)
	if err != nil {
		return "", err
	}
	ts := strconv.FormatInt(timestamp.Unix(), 10)
	return SignatureVersion + "," + base64.StdEncoding.EncodeToString(computeSignature(key, deliveryID, ts, body)), nil
}

// DecodeSecret base64 decodes a whsec_ prefixed secret. Unprefixed secrets
// are used as raw bytes, even when they happen to be valid base64.
func DecodeSecret(secret string) ([]byte, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("webhooks: signing secret is required")
	}
	encoded, prefixed := strings.CutPrefix(secret, SecretPrefix)
	if !prefixed {
		return []byte(secret), nil
	}
	if encoded == "" {
		return nil, fmt.Errorf("webhooks: signing secret is empty after prefix")
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(decoded) == 0 {
		return nil, fmt.Errorf("webhooks: signing secret is not valid base64")
	}
	return decoded, nil
}

func computeSignature(key []byte, deliveryID string, timestamp string, body []byte) []byte {
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write([]byte(deliveryID))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write([]byte(timestamp))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return mac.Sum(nil)
}

// matchesAny compares expected against every v1 entry. Entries with other
// versions or undecodable payloads are skipped.
func matchesAny(expected []byte, header string) bool {
	matched := false
	for _, entry := range strings.Fields(header) {
		version, encoded, ok := strings.Cut(entry, ",")
		if !ok || version != SignatureVersion {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			continue
		}
		if subtle.ConstantTimeCompare(decoded, expected) == 1 {
			matched = true
		}
	}
	return matched
}

func parseTimestamp(value string) (time.Time, error) {
	seconds, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(seconds, 0).UTC(), nil
}

func headerFamilies(cfg SignatureConfig) []headerFamily {
	id := strings.TrimSpace(cfg.IDHeader)
	timestamp := strings.TrimSpace(cfg.TimestampHeader)
	signature := strings.TrimSpace(cfg.SignatureHeader)
	if id == "" && timestamp == "" && signature == "" {
		return []headerFamily{svixHeaders, webhookHeaders}
	}
	family := svixHeaders
	if id != "" {
		family.id = id
	}
	if timestamp != "" {
		family.timestamp = timestamp
	}
	if signature != "" {
		family.signature = signature
	}
	return []headerFamily{family}
}

// selectFamily returns the first family with any header present, or the
// first family when none match so the missing headers are reported.
func selectFamily(headers map[string]string, families []headerFamily) headerFamily {
	for _, family := range families {
		if hasHeader(headers, family.id) || hasHeader(headers, family.timestamp) || hasHeader(headers, family.signature) {
			return family
		}
	}
	return families[0]
}

func hasHeader(headers map[string]string, key string) bool {
	for existing := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), key) {
			return true
		}
	}
	return false
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

var _ core.Verifier = (*SignatureVerifier)(nil)
