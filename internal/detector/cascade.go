package detector

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// CascadeDetector finds faces with an OpenCV Haar cascade. Cascades give no
// confidence, so every box scores 1.
type CascadeDetector struct {
	mu         sync.Mutex
	classifier gocv.CascadeClassifier
	minSize    image.Point
}

// NewCascadeDetector loads the cascade XML at cfg.Model.
func NewCascadeDetector(cfg Config) (*CascadeDetector, error) {
	if _, err := os.Stat(cfg.Model); err != nil {
		return nil, fmt.Errorf("%w: cascade %s: %w", ErrUnavailable, cfg.Model, err)
	}

	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(cfg.Model) {
		classifier.Close()
		return nil, fmt.Errorf("%w: cannot load cascade %s", ErrUnavailable, cfg.Model)
	}

	return &CascadeDetector{
		classifier: classifier,
		minSize:    image.Pt(40, 40),
	}, nil
}

func (d *CascadeDetector) Detect(frame *gocv.Mat) ([]Box, error) {
	if frame == nil || frame.Empty() {
		return nil, fmt.Errorf("empty frame")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	gray := gocv.NewMat()
	defer gray.Close()
	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}
	eq := gocv.NewMat()
	defer eq.Close()
	gocv.EqualizeHist(gray, &eq)

	rects := d.classifier.DetectMultiScaleWithParams(eq, 1.1, 5, 0, d.minSize, image.Point{})

	boxes := make([]Box, 0, len(rects))
	for _, r := range rects {
		boxes = append(boxes, Box{
			X:      r.Min.X,
			Y:      r.Min.Y,
			Width:  r.Dx(),
			Height: r.Dy(),
			Score:  1,
			Label:  "face",
		})
	}
	return boxes, nil
}

func (d *CascadeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.classifier.Close()
}
