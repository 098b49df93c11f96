// Package capture reads video frames for the tracker using GoCV. A source is
// a local device index, a video file, or a network stream such as the PTZ
// camera's own RTSP feed.
package capture

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"gocv.io/x/gocv"
)

// Capture defaults for local devices. Files and streams keep their native size.
const (
	DefaultFPS    = 5
	DefaultWidth  = 1280
	DefaultHeight = 720
)

var (
	// ErrCameraNotOpen is returned when reading from a source that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")
	// ErrReadFailed is returned when the source yields no frame.
	ErrReadFailed = errors.New("failed to read frame")
)

// Camera is a frame source.
type Camera interface {
	Open() error
	Close() error
	// ReadFrame returns the next frame. The caller closes the Mat.
	ReadFrame() (*gocv.Mat, error)
	SetFPS(fps int)
	FPS() int
	IsOpen() bool
}

// Source identifies where frames come from.
type Source struct {
	Device int
	URI    string
}

// ParseSource interprets s as a device index when it is a non-negative
// integer, otherwise as a file path or stream URL.
func ParseSource(s string) (Source, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Source{}, errors.New("empty video source")
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return Source{}, fmt.Errorf("invalid device index %d", n)
		}
		return Source{Device: n}, nil
	}
	return Source{Device: -1, URI: s}, nil
}

// IsDevice reports whether the source is a local capture device.
func (s Source) IsDevice() bool {
	return s.URI == ""
}

func (s Source) String() string {
	if s.IsDevice() {
		return fmt.Sprintf("device %d", s.Device)
	}
	return s.URI
}

type videoCamera struct {
	source  Source
	capture *gocv.VideoCapture
	mu      sync.Mutex
	running bool
	fps     int
}

// NewCamera returns a Camera for source. It is opened lazily by Open.
func NewCamera(source Source) Camera {
	return &videoCamera{
		source: source,
		fps:    DefaultFPS,
	}
}

// Open starts capture. Local devices are asked for 1280x720.
func (c *videoCamera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	var (
		vc  *gocv.VideoCapture
		err error
	)
	if c.source.IsDevice() {
		vc, err = gocv.OpenVideoCapture(c.source.Device)
	} else {
		vc, err = gocv.OpenVideoCapture(c.source.URI)
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", c.source, err)
	}

	if c.source.IsDevice() {
		vc.Set(gocv.VideoCaptureFrameWidth, DefaultWidth)
		vc.Set(gocv.VideoCaptureFrameHeight, DefaultHeight)
		vc.Set(gocv.VideoCaptureFPS, float64(c.fps))
	}

	c.capture = vc
	c.running = true
	return nil
}

func (c *videoCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		c.running = false
		return nil
	}

	err := c.capture.Close()
	c.capture = nil
	c.running = false
	return err
}

func (c *videoCamera) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("%w from %s", ErrReadFailed, c.source)
	}
	return &mat, nil
}

// SetFPS ignores values <= 0. Only devices honour the hint.
func (c *videoCamera) SetFPS(fps int) {
	if fps <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.fps = fps
	if c.capture != nil && c.source.IsDevice() {
		c.capture.Set(gocv.VideoCaptureFPS, float64(fps))
	}
}

func (c *videoCamera) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fps
}

func (c *videoCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
