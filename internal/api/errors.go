package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/private-doc-vault/docvault-ocr-service/internal/api/shared"
	"github.com/private-doc-vault/docvault-ocr-service/internal/domain"
	"github.com/private-doc-vault/docvault-ocr-service/internal/platform/filestore"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, domain.ErrInvalidSpec):
		return http.StatusBadRequest

	case errors.Is(err, filestore.ErrTooLarge):
		return http.StatusRequestEntityTooLarge

	// Conflicts with the task's current lifecycle state
	case errors.Is(err, domain.ErrAlreadyQueued),
		errors.Is(err, domain.ErrNotQueued),
		errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict

	case errors.Is(err, domain.ErrQueueFull):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "Not found"
	case errors.Is(err, domain.ErrInvalidSpec):
		return invalidSpecMessage(err)
	case errors.Is(err, filestore.ErrTooLarge):
		return "Document too large"
	case errors.Is(err, domain.ErrAlreadyQueued):
		return "Task is already queued"
	case errors.Is(err, domain.ErrNotQueued):
		return "Task is not queued and can no longer be cancelled"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "Operation not allowed in the task's current state"
	case errors.Is(err, domain.ErrQueueFull):
		return "Task queue is full, try again later"
	default:
		return "An unexpected error occurred"
	}
}

// invalidSpecMessage keeps the reason a submission was rejected. Spec
// errors carry only client-provided values, never internals.
func invalidSpecMessage(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, domain.ErrInvalidSpec.Error()); i >= 0 {
		msg = msg[i:]
	}
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return "Invalid task: " + strings.TrimPrefix(msg, domain.ErrInvalidSpec.Error()+": ")
}

// HandleAPIError maps err to a status code and writes the sanitized
// message. defaultMsg replaces the generic message for server errors.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, defaultMsg string) {
	status := MapErrorToStatusCode(err)
	msg := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && defaultMsg != "" {
		msg = defaultMsg
	}
	shared.RespondWithErrorAndLog(w, r, status, msg, err)
}

// SanitizeValidationError removes sensitive details from validation errors
// and returns a user-friendly message.
func SanitizeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Sprintf("Invalid %s: %s", fe.Field(), getValidationTagMessage(fe.Tag()))
	}
	return "Validation error"
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "url", "http_url":
		return "invalid URL"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	case "dive":
		return "invalid element"
	default:
		return "validation failed"
	}
}
