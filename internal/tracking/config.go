package tracking

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TieBreak selects which axis is commanded when both pan and tilt errors
// exceed the threshold in the same frame. Only one command is sent per frame.
type TieBreak string

const (
	// TieBreakLargerError commands the axis with the larger error relative to
	// its half-frame dimension. Ties go to tilt.
	TieBreakLargerError TieBreak = "larger-error"
	// TieBreakTiltFirst always prefers tilt.
	TieBreakTiltFirst TieBreak = "tilt-first"
	// TieBreakAlternate alternates axes each time both qualify.
	TieBreakAlternate TieBreak = "alternate"
)

// Config holds the servo tuning parameters.
type Config struct {
	DeadZone     int           `json:"dead_zone" yaml:"dead_zone"`         // pixels around center with no correction
	Threshold    int           `json:"threshold" yaml:"threshold"`         // minimum per-axis error to command that axis
	CommandDelay time.Duration `json:"command_delay" yaml:"command_delay"` // minimum spacing of directional commands
	PanSpeed     int           `json:"pan_speed" yaml:"pan_speed"`
	TiltSpeed    int           `json:"tilt_speed" yaml:"tilt_speed"`
	AlphaX       float64       `json:"alpha_x" yaml:"alpha_x"` // smoothing weight of the new x reading, (0,1]
	AlphaY       float64       `json:"alpha_y" yaml:"alpha_y"` // smoothing weight of the new y reading, (0,1]
	TieBreak     TieBreak      `json:"tie_break" yaml:"tie_break"`
}

// DefaultConfig returns the stock tuning for a 1080p PTZ camera.
func DefaultConfig() Config {
	return Config{
		DeadZone:     50,
		Threshold:    50,
		CommandDelay: 200 * time.Millisecond,
		PanSpeed:     12,
		TiltSpeed:    12,
		AlphaX:       0.1,
		AlphaY:       0.1,
		TieBreak:     TieBreakLargerError,
	}
}

// ErrInvalidConfig is wrapped by all validation failures.
var ErrInvalidConfig = errors.New("invalid tracking config")

// Validate checks the ranges of every parameter.
func (c Config) Validate() error {
	if c.DeadZone < 0 {
		return fmt.Errorf("%w: dead zone must be >= 0, got %d", ErrInvalidConfig, c.DeadZone)
	}
	if c.Threshold < 0 {
		return fmt.Errorf("%w: threshold must be >= 0, got %d", ErrInvalidConfig, c.Threshold)
	}
	if c.CommandDelay < 0 {
		return fmt.Errorf("%w: command delay must be >= 0, got %v", ErrInvalidConfig, c.CommandDelay)
	}
	if c.PanSpeed <= 0 || c.TiltSpeed <= 0 {
		return fmt.Errorf("%w: speeds must be positive, got pan=%d tilt=%d", ErrInvalidConfig, c.PanSpeed, c.TiltSpeed)
	}
	if c.AlphaX <= 0 || c.AlphaX > 1 {
		return fmt.Errorf("%w: alpha_x must be in (0,1], got %v", ErrInvalidConfig, c.AlphaX)
	}
	if c.AlphaY <= 0 || c.AlphaY > 1 {
		return fmt.Errorf("%w: alpha_y must be in (0,1], got %v", ErrInvalidConfig, c.AlphaY)
	}
	switch c.TieBreak {
	case TieBreakLargerError, TieBreakTiltFirst, TieBreakAlternate:
	default:
		return fmt.Errorf("%w: unknown tie break %q", ErrInvalidConfig, c.TieBreak)
	}
	return nil
}

// UnmarshalYAML decodes a tuning block over the existing values.
// command_delay may be a number of seconds or a Go duration.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	type plain Config

	if value.Kind != yaml.MappingNode {
		return value.Decode((*plain)(c))
	}

	rest := *value
	rest.Content = make([]*yaml.Node, 0, len(value.Content))
	var delay *yaml.Node
	for i := 0; i+1 < len(value.Content); i += 2 {
		if value.Content[i].Value == "command_delay" {
			delay = value.Content[i+1]
			continue
		}
		rest.Content = append(rest.Content, value.Content[i], value.Content[i+1])
	}

	if err := rest.Decode((*plain)(c)); err != nil {
		return err
	}
	if delay == nil {
		return nil
	}
	d, err := ParseSeconds(delay.Value)
	if err != nil {
		return fmt.Errorf("line %d: command_delay: %w", delay.Line, err)
	}
	c.CommandDelay = d
	return nil
}

// ParseSeconds accepts either a Go duration ("200ms") or a bare number of
// seconds ("0.2").
func ParseSeconds(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(math.Round(f * float64(time.Second))), nil
	}
	return time.ParseDuration(s)
}
