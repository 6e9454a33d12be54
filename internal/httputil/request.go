package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// maxBodyBytes bounds request bodies; saved histories can be large
const maxBodyBytes = 10 << 20

// ParseJSON decodes the request body into dest. Bodies over 10MB are rejected.
// Unknown fields are accepted: chat histories carry client-side fields the
// server stores without inspecting.
func ParseJSON(w http.ResponseWriter, r *http.Request, dest interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	return nil
}
