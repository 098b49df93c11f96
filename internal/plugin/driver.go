package plugin

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayusman/ptzfollow/internal/ptz"
)

// Driver sends PTZ commands through a driver plugin. It implements
// ptz.Channel.
type Driver struct {
	plugin   *Plugin
	executor *Executor
	config   []byte
	idle     int
}

// NewDriver looks up name in m. config is passed verbatim to every request
// and may be nil.
func NewDriver(m *Manager, name string, executor *Executor, config []byte) (*Driver, error) {
	p, err := m.Get(name)
	if err != nil {
		return nil, fmt.Errorf("driver %q: %w", name, err)
	}
	return &Driver{plugin: p, executor: executor, config: config, idle: ptz.DefaultIdleSpeed}, nil
}

// Name returns the plugin name.
func (d *Driver) Name() string {
	return d.plugin.Manifest.Name
}

// Send runs the plugin for cmd. A plugin failure, a timeout or a response
// with success=false is a *ptz.TransportError.
func (d *Driver) Send(ctx context.Context, cmd ptz.Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	kind := cmd.Kind.String()
	if !d.plugin.Supports(kind) {
		return fmt.Errorf("%w: driver %s does not support %s", ptz.ErrInvalidCommand, d.Name(), kind)
	}

	verb, err := ptz.Encode(cmd, d.idle)
	if err != nil {
		return err
	}

	resp, err := d.executor.Execute(ctx, d.plugin, &Request{
		Action:    ActionCommand,
		Verb:      verb,
		Kind:      kind,
		Direction: string(cmd.Direction),
		Speed:     cmd.Speed,
		Config:    d.config,
	})
	if err != nil {
		return &ptz.TransportError{Command: cmd, Err: err}
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "driver reported failure"
		}
		return &ptz.TransportError{Command: cmd, Err: errors.New(msg)}
	}
	return nil
}
