package util

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDomainError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   string
		wantStatus int
	}{
		{
			name:       "forbidden passes through",
			err:        NewForbidden("only staff can claim tickets"),
			wantCode:   "FORBIDDEN",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "wrapped conflict is unwrapped",
			err:        fmt.Errorf("claim: %w", NewConflict("ticket is archived", nil)),
			wantCode:   "CONFLICT",
			wantStatus: http.StatusConflict,
		},
		{
			name:       "no rows maps to not found",
			err:        sql.ErrNoRows,
			wantCode:   "NOT_FOUND",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "unknown error is internal",
			err:        errors.New("boom"),
			wantCode:   "INTERNAL_ERROR",
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToDomainError(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.Equal(t, tt.wantStatus, got.HTTPStatus)
		})
	}
}

func TestNewStoreUnavailable(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewStoreUnavailable(cause)

	domainErr := ToDomainError(err)
	assert.True(t, domainErr.Retryable)
	assert.Equal(t, http.StatusServiceUnavailable, domainErr.HTTPStatus)
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsCode(err, "STORE_UNAVAILABLE"))
	assert.False(t, IsCode(err, "CONFLICT"))
}

func TestToDomainErrorNil(t *testing.T) {
	assert.Nil(t, ToDomainError(nil))
}
