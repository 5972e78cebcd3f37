package apperr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/apperr"
)

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("create schedule: %w", apperr.Validation("times", "required"))
	assert.True(t, apperr.IsValidation(err))
	assert.False(t, apperr.IsNotFound(err))
	assert.Equal(t, "create schedule: validation: times: required", err.Error())

	nf := apperr.NotFound("notification", "n-1")
	assert.True(t, apperr.IsNotFound(nf))
	assert.Equal(t, `notification "n-1" not found`, nf.Error())
}

func TestDependencyKeepsTypedErrors(t *testing.T) {
	cause := errors.New("connection reset")
	dep := apperr.Dependency("list notifications", cause)
	assert.True(t, apperr.IsDependency(dep))
	assert.ErrorIs(t, dep, cause)

	nf := apperr.NotFound("schedule", "s-1")
	assert.Same(t, nf, apperr.Dependency("get schedule", nf))
	assert.Nil(t, apperr.Dependency("noop", nil))
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{apperr.Validation("patient_id", "required"), http.StatusBadRequest},
		{apperr.NotFound("refill reminder", "r"), http.StatusNotFound},
		{apperr.Dependency("db", errors.New("down")), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, apperr.HTTPStatus(tc.err))
	}
}
