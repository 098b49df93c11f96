package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ayusman/ptzfollow/internal/store"
)

// DefaultCommandLimit is used by /api/commands when no limit is given.
const DefaultCommandLimit = 50

// MaxCommandLimit caps the limit query parameter.
const MaxCommandLimit = 1000

type sessionResponse struct {
	ID        string `json:"id"`
	Camera    string `json:"camera"`
	Source    string `json:"source"`
	StartedAt string `json:"started_at"`
	EndedAt   string `json:"ended_at,omitempty"`
}

type listSessionsResponse struct {
	Sessions []sessionResponse `json:"sessions"`
}

type commandRecordResponse struct {
	ID        int64  `json:"id"`
	SessionID string `json:"session_id,omitempty"`
	Kind      string `json:"kind"`
	Direction string `json:"direction,omitempty"`
	Speed     int    `json:"speed,omitempty"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	SentAt    string `json:"sent_at"`
}

type listCommandsResponse struct {
	Commands []commandRecordResponse `json:"commands"`
}

func toSessionResponse(s *store.Session) sessionResponse {
	resp := sessionResponse{
		ID:        s.ID,
		Camera:    s.Camera,
		Source:    s.Source,
		StartedAt: s.StartedAt.Format(timeFormat),
	}
	if s.EndedAt != nil {
		resp.EndedAt = s.EndedAt.Format(timeFormat)
	}
	return resp
}

func toCommandsResponse(recs []*store.CommandRecord) listCommandsResponse {
	resp := listCommandsResponse{Commands: make([]commandRecordResponse, 0, len(recs))}
	for _, c := range recs {
		resp.Commands = append(resp.Commands, commandRecordResponse{
			ID:        c.ID,
			SessionID: c.SessionID,
			Kind:      c.Kind,
			Direction: c.Direction,
			Speed:     c.Speed,
			OK:        c.OK,
			Error:     c.Error,
			SentAt:    c.SentAt.Format(timeFormat),
		})
	}
	return resp
}

// SessionsHandler serves the recorded tracking sessions.
// Paths: /api/sessions, /api/sessions/{id}, /api/sessions/{id}/commands
type SessionsHandler struct {
	store *store.Store
}

// NewSessionsHandler creates a SessionsHandler.
func NewSessionsHandler(s *store.Store) *SessionsHandler {
	return &SessionsHandler{store: s}
}

func (h *SessionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/sessions")
	path = strings.Trim(path, "/")
	parts := strings.Split(path, "/")

	switch {
	case path == "":
		h.list(w)
	case len(parts) == 1:
		h.get(w, parts[0])
	case len(parts) == 2 && parts[1] == "commands":
		h.commands(w, parts[0])
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

func (h *SessionsHandler) list(w http.ResponseWriter) {
	sessions, err := h.store.Sessions().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}

	resp := listSessionsResponse{Sessions: make([]sessionResponse, 0, len(sessions))}
	for _, s := range sessions {
		resp.Sessions = append(resp.Sessions, toSessionResponse(s))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *SessionsHandler) get(w http.ResponseWriter, id string) {
	sess, err := h.store.Sessions().GetByID(id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

func (h *SessionsHandler) commands(w http.ResponseWriter, id string) {
	if _, err := h.store.Sessions().GetByID(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}

	recs, err := h.store.Commands().ListBySession(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list commands")
		return
	}
	writeJSON(w, http.StatusOK, toCommandsResponse(recs))
}

// CommandsHandler serves GET /api/commands?limit=N, the most recent command
// attempts across all sessions, newest first.
type CommandsHandler struct {
	store *store.Store
}

// NewCommandsHandler creates a CommandsHandler.
func NewCommandsHandler(s *store.Store) *CommandsHandler {
	return &CommandsHandler{store: s}
}

func (h *CommandsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := DefaultCommandLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, MaxCommandLimit)
	}

	recs, err := h.store.Commands().Recent(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list commands")
		return
	}
	writeJSON(w, http.StatusOK, toCommandsResponse(recs))
}
