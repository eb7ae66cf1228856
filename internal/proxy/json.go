package proxy

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorResponse is the body of responses the proxy produces itself.
type ErrorResponse struct {
	Error string `json:"error"`
	// Login is the entry point to authenticate at, set on 401 responses.
	Login string `json:"login,omitempty"`
}

// writeJSON encodes data with the given status. Encoding failures can only be
// logged: the status line has already been sent.
func writeJSON(ctx context.Context, w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.ErrorContext(ctx, "failed to encode JSON response", "error", err)
	}
}

func writeJSONError(ctx context.Context, w http.ResponseWriter, message string, status int) {
	writeJSON(ctx, w, ErrorResponse{Error: message}, status)
}

// writeLoginRequired tells the client to authenticate at location.
func writeLoginRequired(ctx context.Context, w http.ResponseWriter, location string) {
	w.Header().Set("Location", location)
	writeJSON(ctx, w, ErrorResponse{Error: "login required", Login: location}, http.StatusUnauthorized)
}
