package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorWrapping(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	appErr := NewTransientLookupError("geocode", cause)

	t.Run("unwraps to the cause", func(t *testing.T) {
		assert.ErrorIs(t, appErr, cause)
	})

	t.Run("survives fmt.Errorf wrapping", func(t *testing.T) {
		wrapped := fmt.Errorf("recalc for user alice: %w", appErr)

		var got *AppError
		require.True(t, errors.As(wrapped, &got))
		assert.Equal(t, ErrorTypeTransientLookup, got.Type)
		assert.True(t, IsErrorType(wrapped, ErrorTypeTransientLookup))
	})

	t.Run("carries the lookup source", func(t *testing.T) {
		assert.Equal(t, "geocode", appErr.Metadata["source"])
		assert.Contains(t, appErr.Error(), "connection refused")
	})
}

func TestIsErrorType(t *testing.T) {
	tests := []struct {
		name string
		err  error
		typ  ErrorType
		want bool
	}{
		{"matching type", NewConfigurationError("missing DB_NAME"), ErrorTypeConfiguration, true},
		{"different type", NewConfigurationError("missing DB_NAME"), ErrorTypeValidation, false},
		{"plain error", errors.New("boom"), ErrorTypeInternal, false},
		{"nil error", nil, ErrorTypeInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsErrorType(tt.err, tt.typ))
		})
	}
}

func TestIsConfigurationError(t *testing.T) {
	assert.True(t, IsConfigurationError(NewConfigurationError("bad cron expression")))
	assert.True(t, IsConfigurationError(fmt.Errorf("startup: %w", NewConfigurationError("bad"))))
	assert.False(t, IsConfigurationError(NewValidationError("user_id", "required")))
	assert.False(t, IsConfigurationError(nil))
}

func TestPersistenceError(t *testing.T) {
	cause := errors.New("pq: deadlock detected")
	err := NewPersistenceError("alice", "bob", cause)

	assert.Equal(t, ErrorTypePersistence, err.Type)
	assert.Equal(t, "alice", err.Metadata["user_id"])
	assert.Equal(t, "bob", err.Metadata["matched_user_id"])
	assert.ErrorIs(t, err, cause)
}

func TestWithMetadataAndCorrelation(t *testing.T) {
	err := NewNotFoundError("pending dad match").
		WithMetadata("match_id", "m-123").
		WithCorrelationID("corr-1")

	assert.Equal(t, "m-123", err.Metadata["match_id"])
	assert.Equal(t, "corr-1", err.CorrelationID)

	typ, ok := GetErrorType(err)
	require.True(t, ok)
	assert.Equal(t, ErrorTypeNotFound, typ)
}
