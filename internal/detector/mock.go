package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector returns scripted results. Queued results are consumed one per
// Detect call; once the queue is empty the fixed boxes from SetBoxes are
// returned.
type MockDetector struct {
	mu    sync.Mutex
	boxes []Box
	queue [][]Box
	err   error
	calls int
}

func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetBoxes sets the result returned when the queue is empty.
func (m *MockDetector) SetBoxes(boxes []Box) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.boxes = boxes
}

// Queue appends per-frame results. A nil entry means no detection.
func (m *MockDetector) Queue(frames ...[]Box) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, frames...)
}

// SetError makes Detect fail until cleared with nil.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns the number of Detect calls.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockDetector) Detect(frame *gocv.Mat) ([]Box, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if len(m.queue) > 0 {
		next := m.queue[0]
		m.queue = m.queue[1:]
		return next, nil
	}
	return m.boxes, nil
}

func (m *MockDetector) Close() error {
	return nil
}
