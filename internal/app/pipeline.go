package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/ptzfollow/internal/capture"
	"github.com/ayusman/ptzfollow/internal/detector"
	"github.com/ayusman/ptzfollow/internal/ptz"
	"github.com/ayusman/ptzfollow/internal/store"
	"github.com/ayusman/ptzfollow/internal/tracking"
)

// Run drives the loop until ctx is cancelled or the source fails. It
// returns nil on cancellation and an error wrapping ErrSourceFailure when
// MaxFrameFailures consecutive reads fail. Before returning it sends the
// Stop owed by an active track.
//
// Frames are processed one at a time on the calling goroutine: the
// controller sees frames in order and never concurrently.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return errors.New("app: already running")
	}
	a.running = true
	a.status.Running = true
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.running = false
		a.status.Running = false
		a.mu.Unlock()
	}()

	if err := a.camera.Open(); err != nil {
		return fmt.Errorf("%w: %w", ErrSourceFailure, err)
	}
	defer func() {
		if err := a.camera.Close(); err != nil {
			a.logger.Warn("close source", "error", err)
		}
		a.motion.Close()
	}()

	a.startSession()
	defer a.finish()

	pacer := &capture.Pacer{
		IdleFPS:     a.cfg.IdleFPS,
		ActiveFPS:   a.cfg.ActiveFPS,
		IdleTimeout: a.cfg.IdleTimeout,
	}
	a.camera.SetFPS(pacer.FPS())

	ticker := time.NewTicker(pacer.Interval())
	defer ticker.Stop()

	a.logger.Info("tracking loop started", "source", a.cfg.SourceName, "fps", pacer.FPS())

	failures := 0
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("tracking loop stopping", "reason", ctx.Err())
			return nil
		case <-ticker.C:
		}

		busy, err := a.processFrame(ctx)
		if err != nil {
			failures++
			a.setError(err)
			a.logger.Warn("read frame", "error", err, "consecutive", failures)
			if failures >= a.cfg.MaxFrameFailures {
				a.events.Publish(Event{Type: EventSource, Time: a.cfg.Now(), Error: err.Error()})
				return fmt.Errorf("%w: %d consecutive read errors: %w", ErrSourceFailure, failures, err)
			}
			continue
		}
		failures = 0

		if pacer.Observe(busy, a.cfg.Now()) {
			a.camera.SetFPS(pacer.FPS())
			ticker.Reset(pacer.Interval())
			a.logger.Debug("frame rate changed", "fps", pacer.FPS())
		}
		a.mu.Lock()
		a.status.FPS = pacer.FPS()
		a.mu.Unlock()
	}
}

// processFrame runs one iteration. The error is non-nil only when no frame
// could be read. busy reports motion or an active track.
func (a *App) processFrame(ctx context.Context) (busy bool, err error) {
	frame, err := a.camera.ReadFrame()
	if err != nil {
		return false, err
	}
	defer frame.Close()

	a.applyPendingTuning()

	now := a.cfg.Now()
	geom := tracking.FrameGeometry{Width: frame.Cols(), Height: frame.Rows()}

	if a.cfg.Enhance {
		capture.Enhance(frame)
	}
	moving, _ := a.motion.Detect(frame)

	enabled := a.Enabled()
	var box *detector.Box
	if enabled {
		box = a.detect(frame)
	}

	obs := tracking.Observation{Geometry: geom}
	if box != nil {
		obs.Detection = &tracking.Detection{X: box.X, Y: box.Y, Width: box.Width, Height: box.Height}
	}

	before := a.ctrl.Session().State
	if cmd, ok := a.ctrl.Update(obs, now); ok {
		a.dispatch(ctx, cmd, now)
	}
	// Paused and stopped: resuming smooths from the frame center again.
	if !enabled && a.ctrl.Session().State == tracking.StateIdle {
		a.ctrl.Reset()
	}
	session := a.ctrl.Session()
	if session.State != before {
		a.events.Publish(Event{Type: EventState, Time: now, State: session.State.String()})
	}

	if a.cfg.Annotate {
		a.annotate(frame, box, session)
	}
	a.updateStatus(session, box)

	return moving || session.State == tracking.StateTracking, nil
}

func (a *App) detect(frame *gocv.Mat) *detector.Box {
	boxes, err := a.detector.Detect(frame)
	if err != nil {
		a.logger.Warn("detect", "error", err)
		return nil
	}
	return detector.Primary(boxes)
}

// dispatch sends cmd with a bounded timeout and commits it to the
// controller only on success, so a failed command is decided again on the
// next frame.
func (a *App) dispatch(ctx context.Context, cmd ptz.Command, now time.Time) {
	sendCtx, cancel := context.WithTimeout(ctx, a.cfg.SendTimeout)
	err := a.channel.Send(sendCtx, cmd)
	cancel()

	if err != nil {
		a.logger.Warn("send command", "command", cmd.String(), "error", err)
		a.setError(err)
	} else {
		a.ctrl.Commit(cmd, now)
		a.logger.Debug("command sent", "command", cmd.String())
	}
	a.record(cmd, err, now)
}

// finish sends the Stop owed by an active track using a fresh context, since
// the run context is usually already cancelled, then closes the session.
func (a *App) finish() {
	if cmd, ok := a.ctrl.Shutdown(); ok {
		a.dispatch(context.Background(), cmd, a.cfg.Now())
	}
	a.updateStatus(a.ctrl.Session(), nil)

	a.mu.RLock()
	id := a.sessionID
	a.mu.RUnlock()
	if a.cfg.Store != nil && id != "" {
		if err := a.cfg.Store.Sessions().End(id); err != nil {
			a.logger.Warn("end session", "error", err)
		}
	}
	a.logger.Info("tracking loop stopped")
}

func (a *App) applyPendingTuning() {
	a.mu.Lock()
	pending := a.pending
	a.pending = nil
	a.mu.Unlock()

	if pending == nil {
		return
	}
	if err := a.ctrl.SetConfig(*pending); err != nil {
		a.logger.Warn("apply tuning", "error", err)
	}
}

func (a *App) startSession() {
	if a.cfg.Store == nil {
		return
	}
	sess, err := a.cfg.Store.Sessions().Start(a.cfg.CameraName, a.cfg.SourceName)
	if err != nil {
		a.logger.Warn("start session", "error", err)
		return
	}

	a.mu.Lock()
	a.sessionID = sess.ID
	a.status.SessionID = sess.ID
	a.mu.Unlock()
	a.logger.Info("session started", "session", sess.ID)
}

// record stores and publishes a command attempt.
func (a *App) record(cmd ptz.Command, sendErr error, at time.Time) {
	a.mu.RLock()
	id := a.sessionID
	a.mu.RUnlock()

	if a.cfg.Store != nil {
		if err := a.cfg.Store.Commands().Record(store.NewCommandRecord(id, cmd, sendErr, at)); err != nil {
			a.logger.Warn("record command", "error", err)
		}
	}

	e := Event{Type: EventCommand, Time: at, Command: &cmd, OK: sendErr == nil}
	if sendErr != nil {
		e.Error = sendErr.Error()
	}
	a.events.Publish(e)
}

func (a *App) setError(err error) {
	a.mu.Lock()
	a.status.LastError = err.Error()
	a.mu.Unlock()
}

func (a *App) updateStatus(session tracking.Session, box *detector.Box) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.status.State = session.State
	a.status.Detection = box
	a.status.Smoothed = nil
	if session.HasSmoothed {
		p := session.Smoothed
		a.status.Smoothed = &p
	}
	a.status.LastCommand = nil
	if !session.LastCommand.IsZero() {
		c := session.LastCommand
		a.status.LastCommand = &c
	}
	a.status.LastCommandTime = nil
	if !session.LastCommandTime.IsZero() {
		t := session.LastCommandTime
		a.status.LastCommandTime = &t
	}
	a.status.Frames++
}
