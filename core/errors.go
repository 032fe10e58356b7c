package core

import (
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorAuthMissingHeaders       = "AUTH_MISSING_HEADERS"
	ErrorAuthClockSkew            = "AUTH_CLOCK_SKEW"
	ErrorAuthBadSignature         = "AUTH_BAD_SIGNATURE"
	ErrorNormalizeMalformed       = "NORMALIZE_MALFORMED"
	ErrorNormalizeUnsupportedKind = "NORMALIZE_UNSUPPORTED_KIND"
	ErrorNormalizeMissingField    = "NORMALIZE_MISSING_FIELD"
	ErrorReconcileStoreFailure    = "RECONCILE_STORE_FAILURE"
	ErrorReconcileInvariant       = "RECONCILE_INVARIANT"
	ErrorDeliveryBadInput         = "DELIVERY_BAD_INPUT"
	ErrorDeliveryProviderNotFound = "DELIVERY_PROVIDER_NOT_FOUND"
	ErrorInternal                 = "INTERNAL_ERROR"
)

func AuthError(textCode string, message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryAuth).
		WithCode(http.StatusBadRequest).
		WithTextCode(textCode)
}

func NormalizeError(textCode string, message string, metadata map[string]any) *goerrors.Error {
	status := http.StatusBadRequest
	if textCode == ErrorNormalizeUnsupportedKind {
		status = http.StatusOK
	}
	err := goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(status).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func UnsupportedKindError(providerID string, kind string) *goerrors.Error {
	return NormalizeError(
		ErrorNormalizeUnsupportedKind,
		fmt.Sprintf("%s: unsupported event kind %q", providerID, kind),
		map[string]any{"provider_id": providerID, "kind": kind},
	)
}

func MissingFieldError(providerID string, field string) *goerrors.Error {
	return NormalizeError(
		ErrorNormalizeMissingField,
		fmt.Sprintf("%s: required field %q is missing", providerID, field),
		map[string]any{"provider_id": providerID, "field": field},
	)
}

// StoreFailure wraps a transient persistence error. The delivery is safe to retry.
func StoreFailure(source error, operation string, externalID string) *goerrors.Error {
	err := goerrors.Wrap(source, goerrors.CategoryExternal, "reconcile: store "+operation+" failed").
		WithCode(http.StatusInternalServerError).
		WithTextCode(ErrorReconcileStoreFailure)
	err.WithMetadata(map[string]any{
		"operation":   operation,
		"external_id": externalID,
	})
	return err
}

// InvariantViolation reports a state the reconciler should never observe.
func InvariantViolation(message string, metadata map[string]any) *goerrors.Error {
	err := goerrors.New("reconcile: invariant violated: "+message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(ErrorReconcileInvariant).
		WithSeverity(goerrors.SeverityCritical)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func BadInputError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorDeliveryBadInput)
}

// TextCodeOf returns the go-errors text code carried by err, if any.
func TextCodeOf(err error) string {
	if err == nil {
		return ""
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return strings.TrimSpace(richErr.TextCode)
	}
	return ""
}

func HasTextCode(err error, textCode string) bool {
	return err != nil && TextCodeOf(err) == textCode
}

func IsAuthError(err error) bool {
	switch TextCodeOf(err) {
	case ErrorAuthMissingHeaders, ErrorAuthClockSkew, ErrorAuthBadSignature:
		return true
	default:
		return false
	}
}

func IsUnsupportedKind(err error) bool {
	return HasTextCode(err, ErrorNormalizeUnsupportedKind)
}

func IsStoreFailure(err error) bool {
	return HasTextCode(err, ErrorReconcileStoreFailure)
}

// StatusFor maps a pipeline error onto the sender facing retry contract:
// 400 for permanent rejections, 200 for soft ones, 500 for anything retryable
// or unknown.
func StatusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch TextCodeOf(err) {
	case ErrorAuthMissingHeaders, ErrorAuthClockSkew, ErrorAuthBadSignature,
		ErrorNormalizeMalformed, ErrorNormalizeMissingField,
		ErrorDeliveryBadInput, ErrorDeliveryProviderNotFound:
		return http.StatusBadRequest
	case ErrorNormalizeUnsupportedKind:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}
