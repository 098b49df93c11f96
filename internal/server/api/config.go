package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/ayusman/ptzfollow/internal/log"
	"github.com/ayusman/ptzfollow/internal/store"
	"github.com/ayusman/ptzfollow/internal/tracking"
)

// TuningKey is the settings key under which runtime tuning is persisted.
const TuningKey = "tracking"

// ConfigHandler serves GET and PUT /api/config. A PUT may carry any subset
// of the fields; the merged result is validated, applied to the loop and,
// when a store is configured, persisted.
type ConfigHandler struct {
	tracker Tracker
	store   *store.Store

	// mu keeps the persisted tuning in the order updates were applied.
	mu sync.Mutex
}

// NewConfigHandler creates a ConfigHandler. s may be nil.
func NewConfigHandler(t Tracker, s *store.Store) *ConfigHandler {
	return &ConfigHandler{tracker: t, store: s}
}

// tuningBody is the wire form of tracking.Config. The command delay is in
// seconds.
type tuningBody struct {
	DeadZone     int     `json:"dead_zone"`
	Threshold    int     `json:"threshold"`
	CommandDelay float64 `json:"command_delay"`
	PanSpeed     int     `json:"pan_speed"`
	TiltSpeed    int     `json:"tilt_speed"`
	AlphaX       float64 `json:"alpha_x"`
	AlphaY       float64 `json:"alpha_y"`
	TieBreak     string  `json:"tie_break"`
}

type tuningPatch struct {
	DeadZone     *int     `json:"dead_zone"`
	Threshold    *int     `json:"threshold"`
	CommandDelay *float64 `json:"command_delay"`
	PanSpeed     *int     `json:"pan_speed"`
	TiltSpeed    *int     `json:"tilt_speed"`
	AlphaX       *float64 `json:"alpha_x"`
	AlphaY       *float64 `json:"alpha_y"`
	TieBreak     *string  `json:"tie_break"`
}

func toTuningBody(c tracking.Config) tuningBody {
	return tuningBody{
		DeadZone:     c.DeadZone,
		Threshold:    c.Threshold,
		CommandDelay: c.CommandDelay.Seconds(),
		PanSpeed:     c.PanSpeed,
		TiltSpeed:    c.TiltSpeed,
		AlphaX:       c.AlphaX,
		AlphaY:       c.AlphaY,
		TieBreak:     string(c.TieBreak),
	}
}

func (p tuningPatch) apply(c tracking.Config) tracking.Config {
	if p.DeadZone != nil {
		c.DeadZone = *p.DeadZone
	}
	if p.Threshold != nil {
		c.Threshold = *p.Threshold
	}
	if p.CommandDelay != nil {
		c.CommandDelay = time.Duration(math.Round(*p.CommandDelay * float64(time.Second)))
	}
	if p.PanSpeed != nil {
		c.PanSpeed = *p.PanSpeed
	}
	if p.TiltSpeed != nil {
		c.TiltSpeed = *p.TiltSpeed
	}
	if p.AlphaX != nil {
		c.AlphaX = *p.AlphaX
	}
	if p.AlphaY != nil {
		c.AlphaY = *p.AlphaY
	}
	if p.TieBreak != nil {
		c.TieBreak = tracking.TieBreak(*p.TieBreak)
	}
	return c
}

func (h *ConfigHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, toTuningBody(h.tracker.Tuning()))
	case http.MethodPut:
		h.update(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ConfigHandler) update(w http.ResponseWriter, r *http.Request) {
	var patch tuningPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	cfg, err := h.tracker.UpdateTuning(patch.apply)
	if err != nil {
		if errors.Is(err, tracking.ErrInvalidConfig) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if h.store != nil {
		if err := h.store.Settings().Set(TuningKey, cfg); err != nil {
			log.Warn("persist tuning", "error", err)
			writeError(w, http.StatusInternalServerError, "Tuning applied but not saved")
			return
		}
	}
	writeJSON(w, http.StatusOK, toTuningBody(cfg))
}
