package utils

import (
	"encoding/json"
	"net/http"
)

// errorBody is the uniform error payload every endpoint returns.
type errorBody struct {
	Error string `json:"error"`
}

// RespondWithError writes a JSON error payload with the given status.
func RespondWithError(w http.ResponseWriter, status int, message string) {
	RespondWithJSON(w, status, errorBody{Error: message})
}

// RespondWithJSON encodes payload as the response body. The status line is
// committed before encoding, so an encoding failure can only be reported
// back to the caller, not to the client.
func RespondWithJSON(w http.ResponseWriter, status int, payload interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(payload)
}
