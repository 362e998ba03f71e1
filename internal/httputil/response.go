package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/banshee-data/rover.autopilot/internal/monitoring"
)

var logf = monitoring.Component("httputil")

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
}

// WriteJSON sets the content type, writes status and encodes data. Encoding
// failures happen after the header is sent, so they are only logged.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logf("failed to encode %d response: %v", status, err)
	}
}

func WriteJSONOK(w http.ResponseWriter, data any) { WriteJSON(w, http.StatusOK, data) }

func WriteJSONError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorBody{Error: msg})
}

func MethodNotAllowed(w http.ResponseWriter) {
	WriteJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func BadRequest(w http.ResponseWriter, msg string) { WriteJSONError(w, http.StatusBadRequest, msg) }

func NotFound(w http.ResponseWriter, msg string) { WriteJSONError(w, http.StatusNotFound, msg) }

func InternalServerError(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusInternalServerError, msg)
}
