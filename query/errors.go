package query

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-identity-sync/core"
)

const ErrorUserNotFound = "USER_NOT_FOUND"

func queryDependencyError(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.ErrorInternal)
}

func queryValidationError(field string, message string) error {
	return goerrors.NewValidation("query: validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ErrorDeliveryBadInput).
		WithSeverity(goerrors.SeverityError)
}

func queryNotFoundError(externalID string) error {
	err := goerrors.Wrap(core.ErrUserNotFound, goerrors.CategoryNotFound, "query: user not found").
		WithCode(http.StatusNotFound).
		WithTextCode(ErrorUserNotFound)
	err.WithMetadata(map[string]any{"external_id": externalID})
	return err
}
