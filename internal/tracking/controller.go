package tracking

import (
	"time"

	"github.com/ayusman/ptzfollow/internal/ptz"
)

// Session is the mutable state carried from frame to frame.
type Session struct {
	Smoothed        Point       `json:"smoothed"`
	HasSmoothed     bool        `json:"has_smoothed"`
	LastCommand     ptz.Command `json:"last_command"`
	LastCommandTime time.Time   `json:"last_command_time"`
	State           State       `json:"state"`
}

// Controller is the servo state machine. It is not safe for concurrent use;
// one goroutine drives it one frame at a time.
type Controller struct {
	cfg      Config
	smoother Smoother
	session  Session

	// preferPan is the next axis for TieBreakAlternate.
	preferPan bool
}

// NewController validates cfg and returns an idle controller.
func NewController(cfg Config) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Controller{
		cfg:      cfg,
		smoother: Smoother{AlphaX: cfg.AlphaX, AlphaY: cfg.AlphaY},
	}, nil
}

// Config returns the active tuning.
func (c *Controller) Config() Config {
	return c.cfg
}

// SetConfig replaces the tuning without disturbing the session.
func (c *Controller) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.cfg = cfg
	c.smoother = Smoother{AlphaX: cfg.AlphaX, AlphaY: cfg.AlphaY}
	return nil
}

// Session returns a snapshot of the tracking session.
func (c *Controller) Session() Session {
	return c.session
}

// Reset forgets the smoothed estimate so the next detection starts again
// from the frame center. Command state is kept: a pending Stop is still owed.
func (c *Controller) Reset() {
	c.session.Smoothed = Point{}
	c.session.HasSmoothed = false
}

// Update runs the per-frame decision. It returns the command to transmit
// and true, or a zero command and false when nothing should be sent.
//
// Update only advances the smoothed center. The command state changes when
// the caller reports a successful transmission through Commit, so a command
// that fails to send is decided again on the next frame.
func (c *Controller) Update(obs Observation, now time.Time) (ptz.Command, bool) {
	if obs.Detection == nil || !obs.Geometry.Valid() {
		return c.stopIfTracking()
	}

	center := obs.Geometry.Center()
	raw := obs.Detection.Center()

	prev := c.session.Smoothed
	if !c.session.HasSmoothed {
		prev = center
	}
	smoothed := c.smoother.Smooth(prev, raw)
	c.session.Smoothed = smoothed
	c.session.HasSmoothed = true

	dx := smoothed.X - center.X
	dy := smoothed.Y - center.Y

	if abs(dx) <= c.cfg.DeadZone && abs(dy) <= c.cfg.DeadZone {
		return c.stopIfTracking()
	}

	candidate, ok := c.candidate(dx, dy, obs.Geometry)
	if !ok {
		return ptz.Command{}, false
	}
	if candidate == c.session.LastCommand {
		return ptz.Command{}, false
	}
	if !c.session.LastCommandTime.IsZero() && now.Sub(c.session.LastCommandTime) < c.cfg.CommandDelay {
		return ptz.Command{}, false
	}
	return candidate, true
}

// Commit records that cmd was delivered at now.
func (c *Controller) Commit(cmd ptz.Command, now time.Time) {
	switch cmd.Kind {
	case ptz.KindPan, ptz.KindTilt:
		c.session.LastCommand = cmd
		c.session.LastCommandTime = now
		c.session.State = StateTracking
		if c.cfg.TieBreak == TieBreakAlternate {
			c.preferPan = cmd.Kind == ptz.KindTilt
		}
	case ptz.KindStop:
		c.session.LastCommand = ptz.Command{}
		c.session.LastCommandTime = now
		c.session.State = StateIdle
	}
}

// Shutdown returns the Stop owed before the loop exits, if any.
func (c *Controller) Shutdown() (ptz.Command, bool) {
	return c.stopIfTracking()
}

func (c *Controller) stopIfTracking() (ptz.Command, bool) {
	if c.session.State != StateTracking {
		return ptz.Command{}, false
	}
	return ptz.Stop(), true
}

// candidate picks at most one directional command for the frame.
func (c *Controller) candidate(dx, dy int, g FrameGeometry) (ptz.Command, bool) {
	panOK := abs(dx) > c.cfg.Threshold
	tiltOK := abs(dy) > c.cfg.Threshold

	pan := ptz.Pan(ptz.Right, c.cfg.PanSpeed)
	if dx < 0 {
		pan = ptz.Pan(ptz.Left, c.cfg.PanSpeed)
	}
	tilt := ptz.Tilt(ptz.Down, c.cfg.TiltSpeed)
	if dy < 0 {
		tilt = ptz.Tilt(ptz.Up, c.cfg.TiltSpeed)
	}

	switch {
	case panOK && tiltOK:
		if c.preferPanAxis(dx, dy, g) {
			return pan, true
		}
		return tilt, true
	case panOK:
		return pan, true
	case tiltOK:
		return tilt, true
	}
	return ptz.Command{}, false
}

func (c *Controller) preferPanAxis(dx, dy int, g FrameGeometry) bool {
	switch c.cfg.TieBreak {
	case TieBreakTiltFirst:
		return false
	case TieBreakAlternate:
		return c.preferPan
	default:
		// Compare errors as fractions of the half-frame so a wide frame does
		// not bias toward pan.
		ex := float64(abs(dx)) / (float64(g.Width) / 2)
		ey := float64(abs(dy)) / (float64(g.Height) / 2)
		return ex > ey
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
