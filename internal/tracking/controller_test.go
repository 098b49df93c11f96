package tracking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/ptzfollow/internal/ptz"
)

var hd = FrameGeometry{Width: 1920, Height: 1080}

// boxAt returns a 20x20 detection centered on (x, y).
func boxAt(x, y int) *Detection {
	return &Detection{X: x - 10, Y: y - 10, Width: 20, Height: 20}
}

// rig drives a controller the way the frame loop does: every emitted
// command goes through a channel and is committed only when it succeeds.
type rig struct {
	t    *testing.T
	ctrl *Controller
	ch   *ptz.Recorder
	now  time.Time
}

func newRig(t *testing.T, cfg Config) *rig {
	t.Helper()
	ctrl, err := NewController(cfg)
	require.NoError(t, err)
	return &rig{t: t, ctrl: ctrl, ch: ptz.NewRecorder(), now: time.Unix(1000, 0)}
}

// instant returns a config without smoothing so each frame's error is exact.
func instant() Config {
	cfg := DefaultConfig()
	cfg.AlphaX = 1
	cfg.AlphaY = 1
	return cfg
}

func (r *rig) frame(det *Detection, advance time.Duration) (ptz.Command, bool) {
	r.t.Helper()
	r.now = r.now.Add(advance)
	cmd, ok := r.ctrl.Update(Observation{Geometry: hd, Detection: det}, r.now)
	if ok {
		if err := r.ch.Send(context.Background(), cmd); err == nil {
			r.ctrl.Commit(cmd, r.now)
		}
	}
	return cmd, ok
}

func TestController_ScenarioPanRightThenStop(t *testing.T) {
	r := newRig(t, instant())

	cmd, ok := r.frame(boxAt(1200, 540), 0)
	require.True(t, ok)
	assert.Equal(t, ptz.Pan(ptz.Right, 12), cmd)
	assert.Equal(t, StateTracking, r.ctrl.Session().State)

	cmd, ok = r.frame(boxAt(960, 540), 50*time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, ptz.Stop(), cmd)
	assert.Equal(t, StateIdle, r.ctrl.Session().State)
	assert.True(t, r.ctrl.Session().LastCommand.IsZero())

	assert.Equal(t, []ptz.Command{ptz.Pan(ptz.Right, 12), ptz.Stop()}, r.ch.Sent())
}

func TestController_ScenarioInsideDeadZoneWhileIdle(t *testing.T) {
	r := newRig(t, instant())

	_, ok := r.frame(boxAt(970, 545), 0)
	assert.False(t, ok)
	assert.Empty(t, r.ch.Sent())
	assert.Equal(t, StateIdle, r.ctrl.Session().State)
}

func TestController_ScenarioDuplicateWithinDelay(t *testing.T) {
	r := newRig(t, instant())

	r.frame(boxAt(1200, 540), 0)
	r.frame(boxAt(1210, 540), 50*time.Millisecond)

	assert.Len(t, r.ch.Sent(), 1)
}

func TestController_IdenticalCommandNeverResent(t *testing.T) {
	r := newRig(t, instant())

	for i := 0; i < 50; i++ {
		r.frame(boxAt(1400, 540), 100*time.Millisecond)
	}
	assert.Equal(t, []ptz.Command{ptz.Pan(ptz.Right, 12)}, r.ch.Sent())
}

func TestController_SingleAxisDirections(t *testing.T) {
	tests := []struct {
		name string
		x, y int
		want ptz.Command
	}{
		{"left", 600, 540, ptz.Pan(ptz.Left, 12)},
		{"right", 1300, 540, ptz.Pan(ptz.Right, 12)},
		{"up", 960, 200, ptz.Tilt(ptz.Up, 12)},
		{"down", 960, 900, ptz.Tilt(ptz.Down, 12)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, instant())
			for i := 0; i < 20; i++ {
				r.frame(boxAt(tt.x, tt.y), 30*time.Millisecond)
			}
			assert.Equal(t, []ptz.Command{tt.want}, r.ch.Sent())
		})
	}
}

func TestController_DirectionChangeRespectsDelay(t *testing.T) {
	r := newRig(t, instant())

	_, ok := r.frame(boxAt(1300, 540), 0)
	require.True(t, ok)

	// Subject jumps to the other side before the delay has elapsed.
	_, ok = r.frame(boxAt(600, 540), 100*time.Millisecond)
	assert.False(t, ok)

	cmd, ok := r.frame(boxAt(600, 540), 100*time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, ptz.Pan(ptz.Left, 12), cmd)

	sent := r.ch.Sent()
	require.Len(t, sent, 2)
}

func TestController_MinimumSpacingOfDirectionalCommands(t *testing.T) {
	cfg := instant()
	ctrl, err := NewController(cfg)
	require.NoError(t, err)

	positions := []int{1300, 600, 1300, 600, 1300, 600}
	now := time.Unix(0, 0)
	var times []time.Time
	for i := 0; i < 300; i++ {
		now = now.Add(15 * time.Millisecond)
		x := positions[(i/7)%len(positions)]
		cmd, ok := ctrl.Update(Observation{Geometry: hd, Detection: boxAt(x, 540)}, now)
		if ok {
			ctrl.Commit(cmd, now)
			if !cmd.IsStop() {
				times = append(times, now)
			}
		}
	}

	require.Greater(t, len(times), 2)
	for i := 1; i < len(times); i++ {
		assert.GreaterOrEqual(t, times[i].Sub(times[i-1]), cfg.CommandDelay)
	}
}

func TestController_LossOfTarget(t *testing.T) {
	t.Run("stops once when tracking", func(t *testing.T) {
		r := newRig(t, instant())
		r.frame(boxAt(1300, 540), 0)

		cmd, ok := r.frame(nil, 10*time.Millisecond)
		require.True(t, ok)
		assert.Equal(t, ptz.Stop(), cmd)

		for i := 0; i < 10; i++ {
			_, ok = r.frame(nil, 10*time.Millisecond)
			assert.False(t, ok)
		}
		assert.Equal(t, []ptz.Command{ptz.Pan(ptz.Right, 12), ptz.Stop()}, r.ch.Sent())
	})

	t.Run("silent when idle", func(t *testing.T) {
		r := newRig(t, instant())
		for i := 0; i < 10; i++ {
			_, ok := r.frame(nil, 10*time.Millisecond)
			assert.False(t, ok)
		}
		assert.Empty(t, r.ch.Sent())
	})

	t.Run("smoothed center held", func(t *testing.T) {
		r := newRig(t, DefaultConfig())
		r.frame(boxAt(1200, 600), 0)
		before := r.ctrl.Session().Smoothed
		r.frame(nil, 10*time.Millisecond)
		assert.Equal(t, before, r.ctrl.Session().Smoothed)
	})
}

func TestController_DeadZoneEmitsAtMostOneStop(t *testing.T) {
	r := newRig(t, instant())
	r.frame(boxAt(1300, 540), 0)

	offsets := []int{0, 10, -30, 50, -50, 20, 5}
	for i := 0; i < 40; i++ {
		o := offsets[i%len(offsets)]
		r.frame(boxAt(960+o, 540-o), 20*time.Millisecond)
	}

	sent := r.ch.Sent()
	assert.Equal(t, []ptz.Command{ptz.Pan(ptz.Right, 12), ptz.Stop()}, sent)
}

func TestController_BetweenDeadZoneAndThreshold(t *testing.T) {
	cfg := instant()
	cfg.DeadZone = 40
	cfg.Threshold = 100
	r := newRig(t, cfg)

	cmd, ok := r.frame(boxAt(1300, 540), 0)
	require.True(t, ok)
	require.Equal(t, ptz.Pan(ptz.Right, 12), cmd)

	// Outside the dead zone but under the threshold: nothing is sent and the
	// camera keeps its current command.
	_, ok = r.frame(boxAt(1030, 540), time.Second)
	assert.False(t, ok)
	assert.Equal(t, StateTracking, r.ctrl.Session().State)
	assert.Equal(t, ptz.Pan(ptz.Right, 12), r.ctrl.Session().LastCommand)
}

func TestController_TransportFailureDoesNotCommit(t *testing.T) {
	r := newRig(t, instant())
	r.ch.SetError(assert.AnError)

	_, ok := r.frame(boxAt(1300, 540), 0)
	require.True(t, ok)
	assert.Equal(t, StateIdle, r.ctrl.Session().State)
	assert.True(t, r.ctrl.Session().LastCommand.IsZero())
	assert.True(t, r.ctrl.Session().LastCommandTime.IsZero())

	// The next frame retries immediately once the camera recovers.
	r.ch.SetError(nil)
	cmd, ok := r.frame(boxAt(1300, 540), 10*time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, ptz.Pan(ptz.Right, 12), cmd)
	assert.Equal(t, []ptz.Command{ptz.Pan(ptz.Right, 12)}, r.ch.Sent())
}

func TestController_FailedStopIsRetried(t *testing.T) {
	r := newRig(t, instant())
	r.frame(boxAt(1300, 540), 0)

	r.ch.SetError(assert.AnError)
	_, ok := r.frame(nil, 10*time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, StateTracking, r.ctrl.Session().State)

	r.ch.SetError(nil)
	cmd, ok := r.frame(nil, 10*time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, ptz.Stop(), cmd)
	assert.Equal(t, StateIdle, r.ctrl.Session().State)
}

func TestController_FirstDetectionSmoothsFromCenter(t *testing.T) {
	r := newRig(t, DefaultConfig())

	_, ok := r.frame(boxAt(1200, 540), 0)
	assert.False(t, ok, "first smoothed step from center stays inside the dead zone")
	assert.Equal(t, Point{984, 540}, r.ctrl.Session().Smoothed)

	// Holding the subject off-center eventually commands a pan.
	var sent bool
	for i := 0; i < 30 && !sent; i++ {
		_, sent = r.frame(boxAt(1200, 540), 30*time.Millisecond)
	}
	assert.True(t, sent)
	assert.Equal(t, []ptz.Command{ptz.Pan(ptz.Right, 12)}, r.ch.Sent())
}

func TestController_TieBreak(t *testing.T) {
	// Both axes beyond threshold: dx=300 of 960 (0.31), dy=-240 of 540 (0.44).
	det := boxAt(1260, 300)

	tests := []struct {
		name  string
		tb    TieBreak
		wants []ptz.Command
	}{
		{"larger relative error", TieBreakLargerError, []ptz.Command{ptz.Tilt(ptz.Up, 12)}},
		{"tilt first", TieBreakTiltFirst, []ptz.Command{ptz.Tilt(ptz.Up, 12)}},
		{"alternate", TieBreakAlternate, []ptz.Command{ptz.Tilt(ptz.Up, 12), ptz.Pan(ptz.Right, 12)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := instant()
			cfg.TieBreak = tt.tb
			r := newRig(t, cfg)
			r.frame(det, 0)
			r.frame(det, 250*time.Millisecond)
			assert.Equal(t, tt.wants, r.ch.Sent())
		})
	}

	t.Run("larger error picks pan", func(t *testing.T) {
		r := newRig(t, instant())
		cmd, ok := r.frame(boxAt(1800, 640), 0)
		require.True(t, ok)
		assert.Equal(t, ptz.Pan(ptz.Right, 12), cmd)
	})
}

func TestController_Shutdown(t *testing.T) {
	r := newRig(t, instant())

	_, ok := r.ctrl.Shutdown()
	assert.False(t, ok, "idle controller owes no stop")

	r.frame(boxAt(1300, 540), 0)
	cmd, ok := r.ctrl.Shutdown()
	require.True(t, ok)
	assert.Equal(t, ptz.Stop(), cmd)
}

func TestController_InvalidGeometryCountsAsLoss(t *testing.T) {
	r := newRig(t, instant())
	r.frame(boxAt(1300, 540), 0)

	cmd, ok := r.ctrl.Update(Observation{Detection: boxAt(10, 10)}, r.now)
	require.True(t, ok)
	assert.Equal(t, ptz.Stop(), cmd)
}

func TestController_SetConfigKeepsSession(t *testing.T) {
	r := newRig(t, instant())
	r.frame(boxAt(1300, 540), 0)

	cfg := instant()
	cfg.PanSpeed = 20
	require.NoError(t, r.ctrl.SetConfig(cfg))
	assert.Equal(t, StateTracking, r.ctrl.Session().State)

	cmd, ok := r.frame(boxAt(1300, 540), time.Second)
	require.True(t, ok)
	assert.Equal(t, ptz.Pan(ptz.Right, 20), cmd)

	bad := cfg
	bad.AlphaX = 0
	assert.ErrorIs(t, r.ctrl.SetConfig(bad), ErrInvalidConfig)
	assert.Equal(t, 20, r.ctrl.Config().PanSpeed)
}

func TestController_Reset(t *testing.T) {
	r := newRig(t, DefaultConfig())
	r.frame(boxAt(1500, 540), 0)
	require.True(t, r.ctrl.Session().HasSmoothed)

	r.ctrl.Reset()
	assert.False(t, r.ctrl.Session().HasSmoothed)

	r.frame(boxAt(1500, 540), 0)
	assert.Equal(t, Point{1014, 540}, r.ctrl.Session().Smoothed)
}
