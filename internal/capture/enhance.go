package capture

import "gocv.io/x/gocv"

// Contrast and brightness applied by Enhance.
const (
	EnhanceAlpha = 1.3
	EnhanceBeta  = 30
)

// Enhance boosts contrast and brightness of frame in place
// (dst = |alpha*src + beta|, saturated), which helps face detection on dim
// conference-room feeds.
func Enhance(frame *gocv.Mat) {
	if frame == nil || frame.Empty() {
		return
	}
	gocv.ConvertScaleAbs(*frame, frame, EnhanceAlpha, EnhanceBeta)
}
