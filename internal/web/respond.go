// Package web holds the JSON response envelope shared by the portal's API
// handlers.
package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// JSON writes v with the given status. Every API response uses the
// {"ok": bool, ...} envelope, so v is usually a map or a small struct with an
// Ok field.
func JSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode json response", "error", err)
	}
}

// Fail writes the standard failure envelope.
func Fail(w http.ResponseWriter, r *http.Request, status int, message string) {
	JSON(w, r, status, map[string]any{"ok": false, "message": message})
}
