package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unknown tag", fmt.Errorf("tag %q: %w", "golang", ErrInvalidTag), http.StatusNotFound},
		{"page size", fmt.Errorf("page size 0: %w", ErrInvalidPageSize), http.StatusBadRequest},
		{"operator", ErrInvalidOperator, http.StatusBadRequest},
		{"strategy", ErrInvalidStrategy, http.StatusBadRequest},
		{"sort field", ErrInvalidSortField, http.StatusBadRequest},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests},
		{"length mismatch", fmt.Errorf("and: %w", ErrLengthMismatch), http.StatusInternalServerError},
		{"out of range", ErrIndexOutOfRange, http.StatusInternalServerError},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
		{"app error", New(ErrInvalidInput, http.StatusTeapot, "custom"), http.StatusTeapot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestIsQueryError(t *testing.T) {
	assert.True(t, IsQueryError(fmt.Errorf("wrapped: %w", ErrInvalidTag)))
	assert.True(t, IsQueryError(ErrInvalidOperator))
	assert.False(t, IsQueryError(ErrLengthMismatch))
	assert.False(t, IsQueryError(ErrBuildInvariant))
}

func TestAppErrorUnwrap(t *testing.T) {
	err := Newf(ErrInvalidPageSize, http.StatusBadRequest, "page size %d outside [1,%d]", 300, 250)
	assert.ErrorIs(t, err, ErrInvalidPageSize)
	assert.Equal(t, "invalid page size: page size 300 outside [1,250]", err.Error())
}
