package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/private-doc-vault/docvault-ocr-service/internal/domain"
	"github.com/private-doc-vault/docvault-ocr-service/internal/platform/filestore"
)

func TestMapErrorToStatusCode(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
	}{
		{
			name:           "nil error",
			err:            nil,
			expectedStatus: http.StatusInternalServerError,
		},
		{
			name:           "not found",
			err:            fmt.Errorf("task abc: %w", domain.ErrNotFound),
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "invalid spec",
			err:            fmt.Errorf("%w: file path is required", domain.ErrInvalidSpec),
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "upload too large",
			err:            fmt.Errorf("failed to save upload: %w", filestore.ErrTooLarge),
			expectedStatus: http.StatusRequestEntityTooLarge,
		},
		{
			name:           "already queued",
			err:            domain.ErrAlreadyQueued,
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "not queued",
			err:            domain.ErrNotQueued,
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "claim lost is an invalid transition",
			err:            domain.ErrClaimLost,
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "queue full",
			err:            fmt.Errorf("failed to enqueue: %w", domain.ErrQueueFull),
			expectedStatus: http.StatusServiceUnavailable,
		},
		{
			name:           "backend error",
			err:            errors.New("dial tcp 10.0.0.5:6379: connection refused"),
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expectedStatus, MapErrorToStatusCode(tc.err))
		})
	}
}

func TestGetSafeErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil", nil, "An unexpected error occurred"},
		{"not found", domain.ErrNotFound, "Not found"},
		{"queue full", domain.ErrQueueFull, "Task queue is full, try again later"},
		{
			name:     "invalid spec keeps the reason",
			err:      fmt.Errorf("document 3: %w", fmt.Errorf("%w: unknown priority %q", domain.ErrInvalidSpec, "urgent")),
			expected: `Invalid task: unknown priority "urgent"`,
		},
		{
			name:     "internal details are hidden",
			err:      errors.New("pq: relation ocr_tasks does not exist"),
			expected: "An unexpected error occurred",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, GetSafeErrorMessage(tc.err))
		})
	}
}

func TestSanitizeValidationError(t *testing.T) {
	v := validator.New()

	type payload struct {
		CallbackURL string `validate:"url"`
	}
	err := v.Struct(payload{CallbackURL: "http//broken"})
	require.Error(t, err)
	assert.Equal(t, "Invalid CallbackURL: invalid URL", SanitizeValidationError(err))

	assert.Equal(t, "Validation error", SanitizeValidationError(errors.New("other")))
}
