package capture

import (
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Frame differencing parameters.
const (
	blurKernel    = 21
	diffThreshold = 25
)

// MotionDetector reports whether consecutive frames differ by more than a
// percentage of pixels. The tracker uses it to drop to a low frame rate
// while the scene is static.
type MotionDetector struct {
	mu        sync.Mutex
	threshold float64
	prev      gocv.Mat
	primed    bool
}

// NewMotionDetector uses threshold as the percentage of changed pixels that
// counts as motion (1.0 means 1%).
func NewMotionDetector(threshold float64) *MotionDetector {
	return &MotionDetector{threshold: threshold, prev: gocv.NewMat()}
}

// Detect compares frame with the previous one and returns whether motion
// crossed the threshold together with the changed-pixel percentage. The
// first frame after construction or Reset only primes the baseline.
func (m *MotionDetector) Detect(frame *gocv.Mat) (bool, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if frame == nil || frame.Empty() {
		return false, 0
	}

	cur := preprocess(frame)
	defer cur.Close()

	if !m.primed || m.prev.Rows() != cur.Rows() || m.prev.Cols() != cur.Cols() {
		cur.CopyTo(&m.prev)
		m.primed = true
		return false, 0
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(cur, m.prev, &diff)
	gocv.Threshold(diff, &diff, diffThreshold, 255, gocv.ThresholdBinary)

	changed := float64(gocv.CountNonZero(diff)) / float64(diff.Rows()*diff.Cols()) * 100
	cur.CopyTo(&m.prev)

	return changed > m.threshold, changed
}

// preprocess returns a blurred grayscale copy of frame.
func preprocess(frame *gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}
	gocv.GaussianBlur(gray, &gray, image.Pt(blurKernel, blurKernel), 0, 0, gocv.BorderDefault)
	return gray
}

// Reset drops the baseline.
func (m *MotionDetector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release()
}

// Close releases the baseline Mat. The detector stays usable.
func (m *MotionDetector) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release()
}

func (m *MotionDetector) release() {
	if !m.prev.Empty() {
		m.prev.Close()
		m.prev = gocv.NewMat()
	}
	m.primed = false
}

// SetThreshold ignores values <= 0.
func (m *MotionDetector) SetThreshold(threshold float64) {
	if threshold <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threshold = threshold
}

// Threshold returns the current change percentage threshold.
func (m *MotionDetector) Threshold() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.threshold
}

// Pacer picks the frame rate: ActiveFPS while there is motion or an active
// track, IdleFPS once the scene has been quiet for IdleTimeout.
type Pacer struct {
	IdleFPS     int
	ActiveFPS   int
	IdleTimeout time.Duration

	active     bool
	lastActive time.Time
}

// FPS returns the current target rate.
func (p *Pacer) FPS() int {
	if p.active {
		return p.ActiveFPS
	}
	return p.IdleFPS
}

// Active reports whether the pacer is in the high-rate mode.
func (p *Pacer) Active() bool {
	return p.active
}

// Observe records one frame's activity and reports whether the rate changed.
func (p *Pacer) Observe(busy bool, now time.Time) bool {
	if busy {
		p.lastActive = now
		if !p.active {
			p.active = true
			return true
		}
		return false
	}
	if p.active && now.Sub(p.lastActive) > p.IdleTimeout {
		p.active = false
		return true
	}
	return false
}

// Interval is the frame period for the current rate.
func (p *Pacer) Interval() time.Duration {
	fps := p.FPS()
	if fps <= 0 {
		fps = DefaultFPS
	}
	return time.Second / time.Duration(fps)
}
