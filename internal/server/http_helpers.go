package server

import (
	"encoding/json"
	"io"
	"net/http"
)

// readJSON decodes one request body into dest. Unknown fields are rejected so
// a mistyped setting surfaces as a 400 instead of silently falling back to a
// default.
func readJSON(body io.Reader, dest any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError uses the single {"error": ...} shape every client handler and
// the coordinator's readErrorMessage expect.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
