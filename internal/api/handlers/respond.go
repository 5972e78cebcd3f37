// Package handlers serves the care API over chi. Each handler registers its routes on the
// versioned router and maps domain errors to status codes through apperr.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/api/middleware"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/apperr"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// fail writes err with the status apperr assigns it. Internal failures are logged and
// reported without detail.
func fail(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	code := apperr.HTTPStatus(err)
	if code >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Error(err))
		if code == http.StatusInternalServerError {
			jsonError(w, "internal server error", code)
			return
		}
	}
	jsonError(w, err.Error(), code)
}

// decode reads a JSON body into v, rejecting unknown fields.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("body", "required")
		}
		return apperr.Validation("body", err.Error())
	}
	return nil
}

// intQuery parses an optional integer query parameter; zero means absent.
func intQuery(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperr.Validation(name, "must be a non-negative integer")
	}
	return n, nil
}
