// Package detector finds the tracked subject in a frame. Backends return
// pixel bounding boxes; the tracker follows the first one.
package detector

import (
	"errors"
	"image"

	"gocv.io/x/gocv"
)

// ErrUnavailable is returned when a backend cannot be started, for example
// because its model or helper script is missing.
var ErrUnavailable = errors.New("detector unavailable")

// Box is a detection in pixel coordinates.
type Box struct {
	X      int     `json:"x"`
	Y      int     `json:"y"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Score  float64 `json:"score"`
	Label  string  `json:"label,omitempty"`
}

// Center returns the pixel center of the box.
func (b Box) Center() image.Point {
	return image.Pt(b.X+b.Width/2, b.Y+b.Height/2)
}

// Rect returns the box as an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

// Detector finds subjects in a frame.
type Detector interface {
	// Detect returns the subjects found in frame, possibly none.
	Detect(frame *gocv.Mat) ([]Box, error)
	Close() error
}

// Config holds backend options.
type Config struct {
	// Model is the cascade XML or YuNet ONNX file.
	Model string
	// Script is the MediaPipe helper script. Empty means search the usual
	// locations.
	Script string
	// MinConfidence drops detections scoring below it.
	MinConfidence float64
}

// DefaultConfig returns a Config with a 0.5 confidence floor.
func DefaultConfig() Config {
	return Config{MinConfidence: 0.5}
}

// Primary returns the subject to track: the first box, or nil when there
// are none. Backends report boxes in their own order and the tracker
// deliberately does not re-rank them.
func Primary(boxes []Box) *Box {
	if len(boxes) == 0 {
		return nil
	}
	b := boxes[0]
	return &b
}

// Filter returns the boxes scoring at least minScore with a positive size.
func Filter(boxes []Box, minScore float64) []Box {
	out := boxes[:0:0]
	for _, b := range boxes {
		if b.Score < minScore || b.Width <= 0 || b.Height <= 0 {
			continue
		}
		out = append(out, b)
	}
	return out
}

// clip bounds a box to a width x height frame.
func clip(b Box, width, height int) Box {
	r := b.Rect().Intersect(image.Rect(0, 0, width, height))
	b.X, b.Y, b.Width, b.Height = r.Min.X, r.Min.Y, r.Dx(), r.Dy()
	return b
}
