// Package app runs the tracking loop: it reads frames, finds the subject,
// asks the servo controller what to do and sends the resulting PTZ commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ayusman/ptzfollow/internal/capture"
	"github.com/ayusman/ptzfollow/internal/detector"
	"github.com/ayusman/ptzfollow/internal/log"
	"github.com/ayusman/ptzfollow/internal/ptz"
	"github.com/ayusman/ptzfollow/internal/store"
	"github.com/ayusman/ptzfollow/internal/tracking"
)

// ErrSourceFailure ends Run when the frame source stops producing frames.
var ErrSourceFailure = errors.New("frame source failed")

// Loop defaults.
const (
	DefaultIdleFPS          = 5
	DefaultActiveFPS        = 15
	DefaultIdleTimeout      = 2 * time.Second
	DefaultSendTimeout      = time.Second
	DefaultMaxFrameFailures = 3
	DefaultMotionThreshold  = 1.0
)

// Config holds the loop settings.
type Config struct {
	Tracking tracking.Config

	// SendTimeout bounds every command transmission.
	SendTimeout time.Duration
	// MaxFrameFailures consecutive read errors end Run with ErrSourceFailure.
	MaxFrameFailures int

	IdleFPS         int
	ActiveFPS       int
	IdleTimeout     time.Duration
	MotionThreshold float64

	// Enhance applies the contrast boost before detection.
	Enhance bool
	// Annotate draws the overlay and keeps the latest JPEG for streaming.
	Annotate bool

	// CameraName and SourceName label the stored session.
	CameraName string
	SourceName string

	// Store is optional. When set, sessions and commands are recorded.
	Store *store.Store

	// Now overrides the clock in tests.
	Now func() time.Time
}

func (c *Config) setDefaults() {
	if c.SendTimeout <= 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	if c.MaxFrameFailures <= 0 {
		c.MaxFrameFailures = DefaultMaxFrameFailures
	}
	if c.IdleFPS <= 0 {
		c.IdleFPS = DefaultIdleFPS
	}
	if c.ActiveFPS <= 0 {
		c.ActiveFPS = DefaultActiveFPS
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.MotionThreshold <= 0 {
		c.MotionThreshold = DefaultMotionThreshold
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Status is a snapshot of the loop for the API and tray.
type Status struct {
	Running         bool            `json:"running"`
	Enabled         bool            `json:"enabled"`
	State           tracking.State  `json:"state"`
	SessionID       string          `json:"session_id,omitempty"`
	Smoothed        *tracking.Point `json:"smoothed,omitempty"`
	Detection       *detector.Box   `json:"detection,omitempty"`
	LastCommand     *ptz.Command    `json:"last_command,omitempty"`
	LastCommandTime *time.Time      `json:"last_command_time,omitempty"`
	LastError       string          `json:"last_error,omitempty"`
	Frames          uint64          `json:"frames"`
	FPS             int             `json:"fps"`
}

// App owns the collaborators of one tracking loop.
type App struct {
	cfg      Config
	camera   capture.Camera
	detector detector.Detector
	channel  ptz.Channel
	motion   *capture.MotionDetector
	events   *Hub
	logger   *slog.Logger

	// ctrl is only touched by the Run goroutine.
	ctrl *tracking.Controller

	mu        sync.RWMutex
	enabled   bool
	running   bool
	tuning    tracking.Config
	pending   *tracking.Config
	status    Status
	jpeg      []byte
	jpegSeq   uint64
	sessionID string
}

// New validates cfg and assembles an App. Tracking starts enabled.
func New(cfg Config, camera capture.Camera, det detector.Detector, channel ptz.Channel) (*App, error) {
	if camera == nil || det == nil || channel == nil {
		return nil, errors.New("app: camera, detector and channel are required")
	}
	cfg.setDefaults()

	ctrl, err := tracking.NewController(cfg.Tracking)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:      cfg,
		camera:   camera,
		detector: det,
		channel:  channel,
		motion:   capture.NewMotionDetector(cfg.MotionThreshold),
		events:   NewHub(),
		logger:   log.With("component", "app"),
		ctrl:     ctrl,
		enabled:  true,
		tuning:   cfg.Tracking,
		status:   Status{Enabled: true},
	}, nil
}

// SetEnabled pauses or resumes tracking. While disabled every frame counts
// as having no subject, so an active camera is stopped once.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	changed := a.enabled != enabled
	a.enabled = enabled
	a.status.Enabled = enabled
	a.mu.Unlock()

	if changed {
		a.logger.Info("tracking toggled", "enabled", enabled)
		a.events.Publish(Event{Type: EventEnabled, Time: a.cfg.Now(), Enabled: &enabled})
	}
}

// Enabled reports whether tracking is on.
func (a *App) Enabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// Tuning returns the most recently accepted tracking parameters.
func (a *App) Tuning() tracking.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.tuning
}

// SetTuning validates cfg and applies it at the next frame boundary.
func (a *App) SetTuning(cfg tracking.Config) error {
	_, err := a.UpdateTuning(func(tracking.Config) tracking.Config { return cfg })
	return err
}

// UpdateTuning applies fn to the current tuning and stores the result if it
// validates. Concurrent updates are serialized, so partial edits do not
// overwrite each other.
func (a *App) UpdateTuning(fn func(tracking.Config) tracking.Config) (tracking.Config, error) {
	a.mu.Lock()
	cfg := fn(a.tuning)
	if err := cfg.Validate(); err != nil {
		a.mu.Unlock()
		return tracking.Config{}, err
	}
	a.tuning = cfg
	a.pending = &cfg
	a.mu.Unlock()

	a.logger.Info("tuning updated", "dead_zone", cfg.DeadZone, "threshold", cfg.Threshold,
		"command_delay", cfg.CommandDelay, "alpha_x", cfg.AlphaX, "alpha_y", cfg.AlphaY)
	return cfg, nil
}

// Manual sends cmd outside the servo loop, bounded by the send timeout, and
// records it like any other command.
func (a *App) Manual(ctx context.Context, cmd ptz.Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.SendTimeout)
	err := a.channel.Send(ctx, cmd)
	cancel()

	a.record(cmd, err, a.cfg.Now())
	if err != nil {
		return fmt.Errorf("manual %s: %w", cmd, err)
	}
	a.logger.Info("manual command sent", "command", cmd.String())
	return nil
}

// Status returns the latest loop snapshot.
func (a *App) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// LatestJPEG returns the last annotated frame and its sequence number. The
// sequence is zero until a frame has been encoded.
func (a *App) LatestJPEG() ([]byte, uint64) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.jpeg, a.jpegSeq
}

// Subscribe returns a stream of loop events and a function to stop it.
func (a *App) Subscribe() (<-chan Event, func()) {
	return a.events.Subscribe(64)
}

// Config returns the loop configuration with defaults applied.
func (a *App) Config() Config {
	return a.cfg
}
