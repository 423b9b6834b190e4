package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/warden-io/warden/pkg/actors"
	"github.com/warden-io/warden/pkg/guard"
)

// WriteJSON writes data as a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes a JSON error response
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}

// WriteBadRequest writes a 400 error response
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message)
}

// WriteNotFound writes a 404 error response
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message)
}

// WriteInternalError writes a 500 error response without leaking the
// underlying error to the client.
func WriteInternalError(w http.ResponseWriter) {
	WriteError(w, http.StatusInternalServerError, "internal server error")
}

// WriteGuardError maps the guard's error taxonomy onto HTTP statuses:
// denials are 403 with the denial message as the body, missing targets
// are 404, invalid transitions are 400, and anything else is a 500.
func WriteGuardError(w http.ResponseWriter, err error) {
	switch {
	case guard.IsDenied(err):
		WriteError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, actors.ErrActorNotFound):
		WriteNotFound(w, err.Error())
	case errors.Is(err, guard.ErrInvalidTransition):
		WriteBadRequest(w, err.Error())
	default:
		WriteInternalError(w)
	}
}
