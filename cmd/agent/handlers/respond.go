// Package handlers provides the localhost REST API the UI talks to.
package handlers

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/melicheck/fieldsync/internal/errors"
)

// writeJSON writes a JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps an error to a JSON error body. AppError codes carry
// through so the UI can react to OFFLINE_NO_CACHE and friends.
func writeError(w http.ResponseWriter, status int, err error) {
	body := map[string]interface{}{"error": err.Error()}
	if appErr, ok := err.(*apperrors.AppError); ok {
		body["code"] = string(appErr.Code)
	}
	writeJSON(w, status, body)
}

// decodeBody decodes a JSON request body into v.
func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
