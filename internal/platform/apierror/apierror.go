// Package apierror writes JSON responses and maps service errors to HTTP status codes.
package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// Rule maps a sentinel error (matched with errors.Is) to an HTTP status.
type Rule struct {
	Err    error
	Status int
}

// Body is the error envelope returned to clients.
type Body struct {
	Error string `json:"error"`
}

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// ErrBadJSON is returned by Decode for malformed or oversized bodies.
var ErrBadJSON = errors.New("invalid JSON body")

// JSON writes v with status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// Message writes {"error": msg} with status.
func Message(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, Body{Error: msg})
}

// Write maps err through rules. A matching rule writes err's message with the rule's status;
// anything else is logged and answered with 500 and a generic message.
func Write(w http.ResponseWriter, logger *zap.Logger, err error, rules ...Rule) {
	if errors.Is(err, ErrBadJSON) {
		Message(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, r := range rules {
		if errors.Is(err, r.Err) {
			Message(w, r.Status, err.Error())
			return
		}
	}
	if logger != nil {
		logger.Error("internal error", zap.Error(err))
	}
	Message(w, http.StatusInternalServerError, "internal server error")
}

// Decode reads a JSON body into v. Unknown fields are ignored.
func Decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadJSON, err)
	}
	return nil
}
