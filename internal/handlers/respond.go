package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/vidfriends/streamer/internal/logging"
)

type errorBody struct {
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

// respondError writes {error} and, outside production, the underlying error text.
func respondError(ctx context.Context, w http.ResponseWriter, status int, message string, err error, verbose bool) {
	body := errorBody{Error: message}
	if verbose && err != nil {
		body.Details = err.Error()
	}
	respondJSON(ctx, w, status, body)
}
