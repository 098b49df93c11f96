// Package tracking implements the visual-servoing loop that keeps a detected
// subject centered: exponential smoothing of the subject center, dead-zone
// and threshold policies, and a throttled command decision per frame.
//
// The package has no I/O. The caller feeds one Observation per frame to
// Controller.Update, transmits the returned command, and reports a
// successful transmission back through Controller.Commit.
package tracking

import "fmt"

// Point is a pixel coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// FrameGeometry is the pixel size of a video frame.
type FrameGeometry struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Center returns the logical center of the frame.
func (g FrameGeometry) Center() Point {
	return Point{X: g.Width / 2, Y: g.Height / 2}
}

// Valid reports whether both dimensions are positive.
func (g FrameGeometry) Valid() bool {
	return g.Width > 0 && g.Height > 0
}

// Detection is the bounding box of the tracked subject in pixels.
type Detection struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Center returns the center of the bounding box.
func (d Detection) Center() Point {
	return Point{X: d.X + d.Width/2, Y: d.Y + d.Height/2}
}

// Observation is everything the controller learns about one frame.
// A nil Detection means no subject was found.
type Observation struct {
	Geometry  FrameGeometry
	Detection *Detection
}

// State is the servo controller state.
type State int

const (
	// StateIdle means no directional command is active.
	StateIdle State = iota
	// StateTracking means a directional command was sent and not yet stopped.
	StateTracking
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTracking:
		return "tracking"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
