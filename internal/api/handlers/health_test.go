package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/api/handlers"
	"github.com/NexaDev-26/Nexafya0.1-sub004/pkg/circuitbreaker"
)

func TestReadyReportsFailingDependency(t *testing.T) {
	h := handlers.NewHealthHandler("care-api", map[string]handlers.Check{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	}, func() []circuitbreaker.Health {
		return []circuitbreaker.Health{{Name: "sms", State: circuitbreaker.StateOpen}}
	})

	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Status       string `json:"status"`
		Dependencies []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
			Error  string `json:"error"`
		} `json:"dependencies"`
		Breakers []circuitbreaker.Health `json:"circuit_breakers"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "unavailable", body.Status)
	require.Len(t, body.Dependencies, 2)
	assert.Equal(t, "postgres", body.Dependencies[0].Name)
	assert.Equal(t, "up", body.Dependencies[0].Status)
	assert.Equal(t, "connection refused", body.Dependencies[1].Error)
	require.Len(t, body.Breakers, 1)
	assert.Equal(t, circuitbreaker.StateOpen, body.Breakers[0].State)
}

func TestReadyWithoutChecks(t *testing.T) {
	h := handlers.NewHealthHandler("care-api", nil, nil)
	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
