package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/cuemby/ember/pkg/dispatcher"
)

const maxBodyBytes = 1 << 20

// statusFor maps an error kind to an HTTP status
func statusFor(kind string) int {
	switch kind {
	case "no_worker", "not_leader", "unavailable":
		return http.StatusServiceUnavailable
	case "duplicate_task", "duplicate_worker":
		return http.StatusConflict
	case "worker_not_found", "task_not_found":
		return http.StatusNotFound
	case "invalid_task", "invalid_config", "bad_request":
		return http.StatusBadRequest
	case "unauthorized":
		return http.StatusUnauthorized
	case "forbidden":
		return http.StatusForbidden
	case "rate_limited":
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	kind := dispatcher.ErrorKind(err)
	writeJSON(w, statusFor(kind), ErrorResponse{Error: err.Error(), Kind: kind})
}

func badRequest(w http.ResponseWriter, format string, args ...any) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf(format, args...), Kind: "bad_request"})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// decode reads a JSON body into v, rejecting unknown fields
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body is empty")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
