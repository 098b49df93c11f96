// Package testutil builds synthetic video frames for tests that need real
// image data but no camera.
package testutil

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Frame sizes used across the tests.
const (
	Width  = 640
	Height = 480
)

var skin = color.RGBA{R: 180, G: 140, B: 120}

// BlankFrame returns a uniform gray frame. The caller closes it.
func BlankFrame() *gocv.Mat {
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 40, 40, 0), Height, Width, gocv.MatTypeCV8UC3)
	return &m
}

// SubjectFrame returns a frame with a filled skin-toned rectangle covering r,
// standing in for a face. The caller closes it.
func SubjectFrame(r image.Rectangle) *gocv.Mat {
	m := BlankFrame()
	gocv.Rectangle(m, r, skin, -1)
	return m
}

// CloseAll releases every frame.
func CloseAll(frames []*gocv.Mat) {
	for _, f := range frames {
		f.Close()
	}
}
