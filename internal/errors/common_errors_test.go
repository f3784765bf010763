package errors

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name:     "without cause",
			err:      NewGridError("fewer than two distinct timestamps"),
			expected: "[GRID] fewer than two distinct timestamps",
		},
		{
			name:     "with cause",
			err:      NewConfigError("invalid daily mask", fmt.Errorf("bad hour")),
			expected: "[CONFIG] invalid daily mask: bad hour",
		},
		{
			name:     "insufficient data",
			err:      NewInsufficientDataError("no candidate window"),
			expected: "[INSUFFICIENT_DATA] no candidate window",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("permission denied")
	err := NewIOError("cannot open input", cause)

	assert.True(t, errors.Is(err, cause))

	var appErr *AppError
	require.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &appErr))
	assert.Equal(t, ErrTypeIO, appErr.Type)
}

func TestAppError_WithContext(t *testing.T) {
	err := NewParsingError("bad value", nil).
		WithContext("line", 12).
		WithContext("raw", "+ 1x.2")

	assert.Equal(t, 12, err.Context["line"])
	assert.Equal(t, "+ 1x.2", err.Context["raw"])

	bare := &AppError{Type: ErrTypeParsing}
	bare.WithContext("k", "v")
	assert.Equal(t, "v", bare.Context["k"])
}

func TestIsType(t *testing.T) {
	inner := NewConfigError("bad regex", nil)
	outer := NewIOError("load failed", inner)

	assert.True(t, IsType(outer, ErrTypeIO))
	assert.True(t, IsType(outer, ErrTypeConfig))
	assert.False(t, IsType(outer, ErrTypeGrid))
	assert.False(t, IsType(errors.New("plain"), ErrTypeIO))
	assert.False(t, IsType(nil, ErrTypeIO))
}

func TestFromAppError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", NewNotFoundError("series"), http.StatusNotFound},
		{"parsing", NewParsingError("bad csv", nil), http.StatusUnprocessableEntity},
		{"io", NewIOError("disk", nil), http.StatusInternalServerError},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, FromAppError(tt.err).StatusCode)
		})
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, ErrRateLimitExceeded)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "RATE_LIMIT_EXCEEDED")
}
