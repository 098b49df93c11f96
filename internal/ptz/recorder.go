package ptz

import (
	"context"
	"sync"
)

// Recorder is an in-memory Channel. It records every command it accepts and
// can be told to fail, which makes it useful for dry runs and tests.
type Recorder struct {
	mu   sync.Mutex
	sent []Command
	err  error
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Send records cmd, or returns the configured failure without recording.
func (r *Recorder) Send(ctx context.Context, cmd Command) error {
	if err := ctx.Err(); err != nil {
		return &TransportError{Command: cmd, Err: err}
	}
	if err := cmd.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return &TransportError{Command: cmd, Err: r.err}
	}
	r.sent = append(r.sent, cmd)
	return nil
}

// SetError makes subsequent sends fail with err. nil restores success.
func (r *Recorder) SetError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Sent returns a copy of the accepted commands in order.
func (r *Recorder) Sent() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Command, len(r.sent))
	copy(out, r.sent)
	return out
}

// Reset forgets recorded commands.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}
