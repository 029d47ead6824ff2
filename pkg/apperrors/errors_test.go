package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("send handover: %w", InvalidTransition("CANCELLED", "send", "ADMIN"))

	assert.Equal(t, KindInvalidTransition, KindOf(err))
	assert.True(t, IsDomain(err))
	assert.Contains(t, err.Error(), "CANCELLED")
	assert.Contains(t, err.Error(), "send")
	assert.Contains(t, err.Error(), "ADMIN")
}

func TestUnknownErrorsAreInfra(t *testing.T) {
	err := errors.New("connection reset")

	assert.Equal(t, KindInfra, KindOf(err))
	assert.False(t, IsDomain(err))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(err))
}

func TestInfraIsRetryable(t *testing.T) {
	cause := errors.New("timeout")
	err := Infra("store object", cause)

	assert.True(t, err.Retryable())
	assert.ErrorIs(t, err, cause)
	assert.False(t, Validation("file", "too big").Retryable())
}

func TestHTTPStatus(t *testing.T) {
	cases := map[int]error{
		http.StatusBadRequest:         Validation("reason", "reason is required"),
		http.StatusPreconditionFailed: Precondition("missing NATIONAL_ID"),
		http.StatusConflict:           State("PENDING_APPROVAL", "delete document", "under review"),
		http.StatusForbidden:          Forbidden("admin only"),
		http.StatusNotFound:           NotFound("handover", "x"),
		http.StatusUnauthorized:       Unauthenticated("missing token"),
	}
	for status, err := range cases {
		assert.Equal(t, status, HTTPStatus(err), err.Error())
	}
}
