package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		detail string
	}{
		{"validation", Validation("bad input"), http.StatusBadRequest, "bad input"},
		{"conflict", Conflict("milestone already paid"), http.StatusBadRequest, "milestone already paid"},
		{"forbidden", Forbidden("only the employer"), http.StatusForbidden, "only the employer"},
		{"not found", NotFound("contract not found"), http.StatusNotFound, "contract not found"},
		{"not configured", NotConfigured("Stripe is not configured"), http.StatusInternalServerError, "Stripe is not configured"},
		{"gateway", Gateway("card declined", errors.New("raw")), http.StatusBadRequest, "card declined"},
		{"wrapped", fmt.Errorf("outer: %w", InvalidState("contract is cancelled")), http.StatusBadRequest, "contract is cancelled"},
		{"plain", errors.New("pq: password authentication failed"), http.StatusInternalServerError, "internal server error"},
		{"internal", Internal(errors.New("driver detail")), http.StatusInternalServerError, "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, detail := Resolve(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.detail, detail)
		})
	}
}

func TestIsCode(t *testing.T) {
	err := fmt.Errorf("x: %w", Conflict("dup"))
	assert.True(t, IsCode(err, CodeConflict))
	assert.False(t, IsCode(err, CodeForbidden))
	assert.False(t, IsCode(errors.New("plain"), CodeConflict))
}

func TestUnwrapKeepsCause(t *testing.T) {
	cause := errors.New("socket closed")
	err := Internal(cause)
	assert.ErrorIs(t, err, cause)
	assert.True(t, err.Retryable())
	assert.False(t, Validation("x").Retryable())
}
