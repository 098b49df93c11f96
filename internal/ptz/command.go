// Package ptz provides the command channel used to move a PTZ camera.
package ptz

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies the operation carried by a Command.
type Kind int

const (
	// KindNone is the zero Command: nothing to send.
	KindNone Kind = iota
	KindPan
	KindTilt
	KindStop
	KindZoom
	KindZoomStop
	KindFocus
	KindFocusStop
)

func (k Kind) String() string {
	switch k {
	case KindPan:
		return "pan"
	case KindTilt:
		return "tilt"
	case KindStop:
		return "stop"
	case KindZoom:
		return "zoom"
	case KindZoomStop:
		return "zoomstop"
	case KindFocus:
		return "focus"
	case KindFocusStop:
		return "focusstop"
	default:
		return "none"
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText accepts the names produced by String.
func (k *Kind) UnmarshalText(b []byte) error {
	for c := KindNone; c <= KindFocusStop; c++ {
		if c.String() == string(b) {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("%w: unknown kind %q", ErrInvalidCommand, b)
}

// Direction is the sense of a directional, zoom or focus command.
type Direction string

const (
	Left  Direction = "left"
	Right Direction = "right"
	Up    Direction = "up"
	Down  Direction = "down"
	In    Direction = "in"
	Out   Direction = "out"
)

// ErrInvalidCommand is returned when a command cannot be encoded or parsed.
var ErrInvalidCommand = errors.New("invalid ptz command")

// Command is an immutable camera instruction. Commands are comparable, so two
// decisions with the same kind, direction and speed are equal.
type Command struct {
	Kind      Kind      `json:"kind"`
	Direction Direction `json:"direction,omitempty"`
	Speed     int       `json:"speed,omitempty"`
}

// Pan returns a pan command. dir must be Left or Right.
func Pan(dir Direction, speed int) Command {
	return Command{Kind: KindPan, Direction: dir, Speed: speed}
}

// Tilt returns a tilt command. dir must be Up or Down.
func Tilt(dir Direction, speed int) Command {
	return Command{Kind: KindTilt, Direction: dir, Speed: speed}
}

// Stop halts all pan/tilt movement.
func Stop() Command {
	return Command{Kind: KindStop}
}

// Zoom returns a zoom command. dir must be In or Out.
func Zoom(dir Direction, speed int) Command {
	return Command{Kind: KindZoom, Direction: dir, Speed: speed}
}

// ZoomStop halts zoom movement.
func ZoomStop() Command {
	return Command{Kind: KindZoomStop}
}

// Focus returns a focus command. dir must be In or Out.
func Focus(dir Direction, speed int) Command {
	return Command{Kind: KindFocus, Direction: dir, Speed: speed}
}

// FocusStop halts focus movement.
func FocusStop() Command {
	return Command{Kind: KindFocusStop}
}

// IsZero reports whether c is the empty command.
func (c Command) IsZero() bool {
	return c.Kind == KindNone
}

// IsStop reports whether c halts movement on some axis.
func (c Command) IsStop() bool {
	return c.Kind == KindStop || c.Kind == KindZoomStop || c.Kind == KindFocusStop
}

func (c Command) String() string {
	switch c.Kind {
	case KindPan, KindTilt, KindZoom, KindFocus:
		return fmt.Sprintf("%s(%s, %d)", c.Kind, c.Direction, c.Speed)
	default:
		return c.Kind.String()
	}
}

// Validate checks that the direction matches the kind and speeds are positive.
func (c Command) Validate() error {
	switch c.Kind {
	case KindPan:
		if c.Direction != Left && c.Direction != Right {
			return fmt.Errorf("%w: pan direction %q", ErrInvalidCommand, c.Direction)
		}
	case KindTilt:
		if c.Direction != Up && c.Direction != Down {
			return fmt.Errorf("%w: tilt direction %q", ErrInvalidCommand, c.Direction)
		}
	case KindZoom, KindFocus:
		if c.Direction != In && c.Direction != Out {
			return fmt.Errorf("%w: %s direction %q", ErrInvalidCommand, c.Kind, c.Direction)
		}
	case KindStop, KindZoomStop, KindFocusStop:
		return nil
	default:
		return fmt.Errorf("%w: empty command", ErrInvalidCommand)
	}

	if c.Speed <= 0 {
		return fmt.Errorf("%w: speed must be positive, got %d", ErrInvalidCommand, c.Speed)
	}
	return nil
}

// Encode renders c as the ptzcmd argument list understood by the camera's
// CGI endpoint, e.g. "left&12&10" or "ptzstop". idleSpeed fills the speed
// slot of the axis that is not moving.
func Encode(c Command, idleSpeed int) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}

	switch c.Kind {
	case KindPan:
		return fmt.Sprintf("%s&%d&%d", c.Direction, c.Speed, idleSpeed), nil
	case KindTilt:
		return fmt.Sprintf("%s&%d&%d", c.Direction, idleSpeed, c.Speed), nil
	case KindStop:
		return "ptzstop", nil
	case KindZoom:
		return fmt.Sprintf("zoom%s&%d", c.Direction, c.Speed), nil
	case KindZoomStop:
		return "zoomstop", nil
	case KindFocus:
		return fmt.Sprintf("focus%s&%d", c.Direction, c.Speed), nil
	case KindFocusStop:
		return "focusstop", nil
	}
	return "", fmt.Errorf("%w: %v", ErrInvalidCommand, c.Kind)
}

// ParseCommand parses the ptzcmd form produced by Encode. For directional
// verbs the speed of the moving axis is kept and the idle-axis speed is
// discarded.
func ParseCommand(s string) (Command, error) {
	parts := strings.Split(strings.TrimSpace(s), "&")
	verb := strings.ToLower(parts[0])

	speedAt := func(i int) (int, error) {
		if i >= len(parts) {
			return 0, fmt.Errorf("%w: %q is missing a speed", ErrInvalidCommand, s)
		}
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			return 0, fmt.Errorf("%w: bad speed %q", ErrInvalidCommand, parts[i])
		}
		return n, nil
	}

	var cmd Command
	switch verb {
	case "left", "right":
		speed, err := speedAt(1)
		if err != nil {
			return Command{}, err
		}
		cmd = Pan(Direction(verb), speed)
	case "up", "down":
		// Tilt speed is the second speed slot. "up&10" carries only one.
		slot := 2
		if len(parts) == 2 {
			slot = 1
		}
		speed, err := speedAt(slot)
		if err != nil {
			return Command{}, err
		}
		cmd = Tilt(Direction(verb), speed)
	case "ptzstop", "stop":
		cmd = Stop()
	case "zoomin", "zoomout":
		speed, err := speedAt(1)
		if err != nil {
			return Command{}, err
		}
		cmd = Zoom(Direction(strings.TrimPrefix(verb, "zoom")), speed)
	case "zoomstop":
		cmd = ZoomStop()
	case "focusin", "focusout":
		speed, err := speedAt(1)
		if err != nil {
			return Command{}, err
		}
		cmd = Focus(Direction(strings.TrimPrefix(verb, "focus")), speed)
	case "focusstop":
		cmd = FocusStop()
	default:
		return Command{}, fmt.Errorf("%w: unknown verb %q", ErrInvalidCommand, verb)
	}

	if err := cmd.Validate(); err != nil {
		return Command{}, err
	}
	return cmd, nil
}
