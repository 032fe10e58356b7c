package inbound

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-identity-sync/core"
)

func inboundError(
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func inboundWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	if source == nil {
		return inboundError(message, category, code, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func inboundBadInput(message string, metadata map[string]any) error {
	return inboundError(
		message,
		goerrors.CategoryBadInput,
		http.StatusBadRequest,
		core.ErrorDeliveryBadInput,
		metadata,
	)
}

func inboundProviderNotFound(providerID string) error {
	return inboundError(
		"inbound: no source registered for provider",
		goerrors.CategoryNotFound,
		http.StatusBadRequest,
		core.ErrorDeliveryProviderNotFound,
		map[string]any{"provider_id": providerID},
	)
}

// inboundInternal wraps errors that carry no text code of their own, such
// as a misconfigured verifier, so they still classify as retryable.
func inboundInternal(source error, message string, metadata map[string]any) error {
	if core.TextCodeOf(source) != "" {
		return source
	}
	return inboundWrapError(
		source,
		goerrors.CategoryInternal,
		message,
		http.StatusInternalServerError,
		core.ErrorInternal,
		metadata,
	)
}
