package apiserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"chatcore/internal/cerrors"
)

// ErrorResponse is the JSON shape of every API error.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeJSONResponse sends data as JSON with the given status.
func writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already out; nothing useful left to do.
			return
		}
	}
}

// writeJSONError sends a JSON error body with the given status.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSONResponse(w, statusCode, ErrorResponse{Error: message})
}

// writeServiceError maps a service-layer error to its HTTP status.
// TxAborted maps to 503: the request was valid, the store was just too
// contended, and the client should retry.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cerrors.ErrValidation):
		writeJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, cerrors.ErrNotFound):
		writeJSONError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, cerrors.ErrConflict):
		writeJSONError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, cerrors.ErrUnauthorized):
		writeJSONError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, cerrors.ErrTxAborted):
		writeJSONError(w, "store contention, please retry", http.StatusServiceUnavailable)
	default:
		writeJSONError(w, "internal server error", http.StatusInternalServerError)
	}
}
