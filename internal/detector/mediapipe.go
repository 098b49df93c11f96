package detector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

const (
	faceScriptName = "face_service.py"
	// Idle time after which the helper process is stopped. It restarts on
	// the next Detect.
	helperIdleTimeout = 30 * time.Second
)

// MediaPipeDetector runs MediaPipe face detection in a helper process.
//
// Each request is a 4-byte big-endian length followed by a JPEG frame on
// the helper's stdin. The helper answers with one JSON line:
//
//	{"faces": [{"x": 0.41, "y": 0.22, "w": 0.12, "h": 0.2, "score": 0.93}]}
//
// Coordinates are relative to the frame size.
type MediaPipeDetector struct {
	mu        sync.Mutex
	name      string
	args      []string
	minScore  float64
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	started   bool
	idleTimer *time.Timer
}

// NewMediaPipeDetector locates the helper script and returns a detector
// that starts it on first use.
func NewMediaPipeDetector(cfg Config) (*MediaPipeDetector, error) {
	script := cfg.Script
	if script == "" {
		script = findScript(faceScriptName)
	}
	if script == "" {
		return nil, fmt.Errorf("%w: %s not found", ErrUnavailable, faceScriptName)
	}
	if _, err := os.Stat(script); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	python := findVenvPython()
	if python == "" {
		python = "python3"
	}
	return newProcessDetector(cfg.MinConfidence, python, script), nil
}

func newProcessDetector(minScore float64, name string, args ...string) *MediaPipeDetector {
	return &MediaPipeDetector{name: name, args: args, minScore: minScore}
}

func (d *MediaPipeDetector) Detect(frame *gocv.Mat) ([]Box, error) {
	if frame == nil || frame.Empty() {
		return nil, fmt.Errorf("empty frame")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureStarted(); err != nil {
		return nil, err
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	faces, err := d.roundTrip(buf.GetBytes())
	if err != nil {
		// A broken pipe leaves the helper unusable; restart it next time.
		d.shutdown()
		return nil, err
	}
	d.resetIdleTimer()

	w, h := frame.Cols(), frame.Rows()
	boxes := make([]Box, 0, len(faces))
	for _, f := range faces {
		boxes = append(boxes, clip(f.toBox(w, h), w, h))
	}
	return Filter(boxes, d.minScore), nil
}

func (d *MediaPipeDetector) roundTrip(jpeg []byte) ([]jsonFace, error) {
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(jpeg)))

	if _, err := d.stdin.Write(length[:]); err != nil {
		return nil, fmt.Errorf("write length: %w", err)
	}
	if _, err := d.stdin.Write(jpeg); err != nil {
		return nil, fmt.Errorf("write frame: %w", err)
	}

	line, err := d.stdout.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var resp struct {
		Faces []jsonFace `json:"faces"`
		Error string     `json:"error,omitempty"`
	}
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("face service: %s", resp.Error)
	}
	return resp.Faces, nil
}

func (d *MediaPipeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdown()
}

func (d *MediaPipeDetector) ensureStarted() error {
	if d.started {
		return nil
	}

	cmd := exec.Command(d.name, d.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: start face service: %w", ErrUnavailable, err)
	}

	d.cmd = cmd
	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	d.started = true
	return nil
}

func (d *MediaPipeDetector) shutdown() error {
	if !d.started {
		return nil
	}
	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}

	d.stdin.Close()
	err := d.cmd.Wait()

	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil
	return err
}

func (d *MediaPipeDetector) resetIdleTimer() {
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleTimer = time.AfterFunc(helperIdleTimeout, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.shutdown()
	})
}

type jsonFace struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	W     float64 `json:"w"`
	H     float64 `json:"h"`
	Score float64 `json:"score"`
}

func (f jsonFace) toBox(width, height int) Box {
	return Box{
		X:      int(f.X * float64(width)),
		Y:      int(f.Y * float64(height)),
		Width:  int(f.W * float64(width)),
		Height: int(f.H * float64(height)),
		Score:  f.Score,
		Label:  "face",
	}
}

// findScript looks for name under scripts/ next to the working directory,
// the executable, and ~/.ptzfollow.
func findScript(name string) string {
	var candidates []string
	candidates = append(candidates,
		filepath.Join("scripts", name),
		filepath.Join("..", "scripts", name),
	)
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), "scripts", name))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".ptzfollow", "scripts", name))
	}
	return firstExisting(candidates)
}

func findVenvPython() string {
	candidates := []string{
		filepath.Join("venv", "bin", "python"),
		filepath.Join("..", "venv", "bin", "python"),
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".ptzfollow", "venv", "bin", "python"))
	}
	return firstExisting(candidates)
}

func firstExisting(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}
