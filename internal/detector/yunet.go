package detector

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// YuNet output columns: box (0-3), five landmarks (4-13), score (14).
const yunetScoreCol = 14

// YuNetDetector finds faces with OpenCV's FaceDetectorYN.
type YuNetDetector struct {
	mu       sync.Mutex
	detector gocv.FaceDetectorYN
	minScore float64
	size     image.Point
}

// NewYuNetDetector loads the ONNX model at cfg.Model.
func NewYuNetDetector(cfg Config) (*YuNetDetector, error) {
	if _, err := os.Stat(cfg.Model); err != nil {
		return nil, fmt.Errorf("%w: yunet model %s: %w", ErrUnavailable, cfg.Model, err)
	}

	size := image.Pt(320, 320)
	fd := gocv.NewFaceDetectorYNWithParams(
		cfg.Model, "", size,
		float32(cfg.MinConfidence),
		0.3,  // NMS
		5000, // top K
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &YuNetDetector{detector: fd, minScore: cfg.MinConfidence, size: size}, nil
}

// Detect returns faces in the detector's order, which is by descending score.
func (d *YuNetDetector) Detect(frame *gocv.Mat) ([]Box, error) {
	if frame == nil || frame.Empty() {
		return nil, fmt.Errorf("empty frame")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if sz := image.Pt(frame.Cols(), frame.Rows()); sz != d.size {
		d.detector.SetInputSize(sz)
		d.size = sz
	}

	faces := gocv.NewMat()
	defer faces.Close()
	d.detector.Detect(*frame, &faces)

	boxes := make([]Box, 0, faces.Rows())
	for r := 0; r < faces.Rows(); r++ {
		b := Box{
			X:      int(faces.GetFloatAt(r, 0)),
			Y:      int(faces.GetFloatAt(r, 1)),
			Width:  int(faces.GetFloatAt(r, 2)),
			Height: int(faces.GetFloatAt(r, 3)),
			Score:  float64(faces.GetFloatAt(r, yunetScoreCol)),
			Label:  "face",
		}
		boxes = append(boxes, clip(b, frame.Cols(), frame.Rows()))
	}
	return Filter(boxes, d.minScore), nil
}

func (d *YuNetDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector.Close()
	return nil
}
