// Package api provides the HTTP handlers of the ptzfollow control API.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ayusman/ptzfollow/internal/app"
	"github.com/ayusman/ptzfollow/internal/ptz"
	"github.com/ayusman/ptzfollow/internal/tracking"
)

// Tracker is the part of the tracking loop the API controls.
type Tracker interface {
	Status() app.Status
	Enabled() bool
	SetEnabled(enabled bool)
	Tuning() tracking.Config
	UpdateTuning(fn func(tracking.Config) tracking.Config) (tracking.Config, error)
	Manual(ctx context.Context, cmd ptz.Command) error
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

const timeFormat = "2006-01-02T15:04:05Z07:00"
