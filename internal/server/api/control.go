package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ayusman/ptzfollow/internal/app"
	"github.com/ayusman/ptzfollow/internal/ptz"
)

// StatusHandler serves GET /api/status.
type StatusHandler struct {
	tracker Tracker
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(t Tracker) *StatusHandler {
	return &StatusHandler{tracker: t}
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse(h.tracker.Status()))
}

type commandResponse struct {
	Kind      string `json:"kind"`
	Direction string `json:"direction,omitempty"`
	Speed     int    `json:"speed,omitempty"`
	Verb      string `json:"verb"` // CGI form, e.g. "left&12&10"
}

type pointResponse struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type boxResponse struct {
	X      int     `json:"x"`
	Y      int     `json:"y"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Score  float64 `json:"score"`
}

type statusBody struct {
	Running         bool             `json:"running"`
	Enabled         bool             `json:"enabled"`
	State           string           `json:"state"`
	SessionID       string           `json:"session_id,omitempty"`
	Smoothed        *pointResponse   `json:"smoothed"`
	Detection       *boxResponse     `json:"detection"`
	LastCommand     *commandResponse `json:"last_command"`
	LastCommandTime string           `json:"last_command_time,omitempty"`
	LastError       string           `json:"last_error,omitempty"`
	Frames          uint64           `json:"frames"`
	FPS             int              `json:"fps"`
}

func toCommandResponse(c ptz.Command) commandResponse {
	verb, _ := ptz.Encode(c, ptz.DefaultIdleSpeed)
	return commandResponse{
		Kind:      c.Kind.String(),
		Direction: string(c.Direction),
		Speed:     c.Speed,
		Verb:      verb,
	}
}

func statusResponse(s app.Status) statusBody {
	body := statusBody{
		Running:   s.Running,
		Enabled:   s.Enabled,
		State:     s.State.String(),
		SessionID: s.SessionID,
		LastError: s.LastError,
		Frames:    s.Frames,
		FPS:       s.FPS,
	}
	if s.Smoothed != nil {
		body.Smoothed = &pointResponse{X: s.Smoothed.X, Y: s.Smoothed.Y}
	}
	if s.Detection != nil {
		d := s.Detection
		body.Detection = &boxResponse{X: d.X, Y: d.Y, Width: d.Width, Height: d.Height, Score: d.Score}
	}
	if s.LastCommand != nil {
		c := toCommandResponse(*s.LastCommand)
		body.LastCommand = &c
	}
	if s.LastCommandTime != nil {
		body.LastCommandTime = s.LastCommandTime.Format(timeFormat)
	}
	return body
}

// TrackingHandler serves POST /api/tracking, which pauses or resumes
// automatic tracking.
type TrackingHandler struct {
	tracker Tracker
}

// NewTrackingHandler creates a TrackingHandler.
func NewTrackingHandler(t Tracker) *TrackingHandler {
	return &TrackingHandler{tracker: t}
}

type trackingRequest struct {
	Enabled *bool `json:"enabled"`
}

type trackingResponse struct {
	Enabled bool `json:"enabled"`
}

func (h *TrackingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, trackingResponse{Enabled: h.tracker.Enabled()})
	case http.MethodPost:
		var req trackingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
		if req.Enabled == nil {
			writeError(w, http.StatusBadRequest, "enabled is required")
			return
		}
		h.tracker.SetEnabled(*req.Enabled)
		writeJSON(w, http.StatusOK, trackingResponse{Enabled: h.tracker.Enabled()})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// PTZHandler serves POST /api/ptz, a manual command passthrough that
// accepts the camera's own verb syntax, e.g. {"command":"zoomin&5"}.
type PTZHandler struct {
	tracker Tracker
}

// NewPTZHandler creates a PTZHandler.
func NewPTZHandler(t Tracker) *PTZHandler {
	return &PTZHandler{tracker: t}
}

type ptzRequest struct {
	Command string `json:"command"`
}

func (h *PTZHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ptzRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	cmd, err := ptz.ParseCommand(req.Command)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.tracker.Manual(r.Context(), cmd); err != nil {
		switch {
		case errors.Is(err, ptz.ErrInvalidCommand):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ptz.ErrTransport):
			writeError(w, http.StatusBadGateway, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, toCommandResponse(cmd))
}
