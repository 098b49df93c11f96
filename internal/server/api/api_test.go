package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ayusman/ptzfollow/internal/app"
	"github.com/ayusman/ptzfollow/internal/detector"
	"github.com/ayusman/ptzfollow/internal/ptz"
	"github.com/ayusman/ptzfollow/internal/store"
	"github.com/ayusman/ptzfollow/internal/tracking"
)

// fakeTracker is an in-memory Tracker.
type fakeTracker struct {
	mu      sync.Mutex
	status  app.Status
	enabled bool
	tuning  tracking.Config
	manual  []ptz.Command
	sendErr error
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{enabled: true, tuning: tracking.DefaultConfig()}
}

func (f *fakeTracker) Status() app.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.status
	s.Enabled = f.enabled
	return s
}

func (f *fakeTracker) Enabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

func (f *fakeTracker) SetEnabled(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = enabled
}

func (f *fakeTracker) Tuning() tracking.Config {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tuning
}

func (f *fakeTracker) UpdateTuning(fn func(tracking.Config) tracking.Config) (tracking.Config, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cfg := fn(f.tuning)
	if err := cfg.Validate(); err != nil {
		return tracking.Config{}, err
	}
	f.tuning = cfg
	return cfg, nil
}

func (f *fakeTracker) Manual(ctx context.Context, cmd ptz.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return &ptz.TransportError{Command: cmd, Err: f.sendErr}
	}
	f.manual = append(f.manual, cmd)
	return nil
}

// newTestStore creates a Store backed by a temporary database.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func TestStatusHandler(t *testing.T) {
	tr := newFakeTracker()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cmd := ptz.Pan(ptz.Left, 12)
	tr.status = app.Status{
		Running:         true,
		State:           tracking.StateTracking,
		SessionID:       "sess-1",
		Smoothed:        &tracking.Point{X: 700, Y: 540},
		Detection:       &detector.Box{X: 600, Y: 500, Width: 80, Height: 80, Score: 0.9},
		LastCommand:     &cmd,
		LastCommandTime: &now,
		Frames:          42,
		FPS:             15,
	}
	h := NewStatusHandler(tr)

	rec := do(h, http.MethodGet, "/api/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}

	var body statusBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.State != "tracking" || !body.Enabled || !body.Running {
		t.Errorf("unexpected status %+v", body)
	}
	if body.Smoothed == nil || body.Smoothed.X != 700 {
		t.Errorf("smoothed = %+v, want x=700", body.Smoothed)
	}
	if body.LastCommand == nil || body.LastCommand.Verb != "left&12&10" {
		t.Errorf("last command = %+v, want verb left&12&10", body.LastCommand)
	}
	if body.LastCommandTime != "2024-05-01T12:00:00Z" {
		t.Errorf("last command time = %q", body.LastCommandTime)
	}

	if rec := do(h, http.MethodPost, "/api/status", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST: expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}

func TestStatusHandler_Idle(t *testing.T) {
	rec := do(NewStatusHandler(newFakeTracker()), http.MethodGet, "/api/status", "")

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["state"] != "idle" {
		t.Errorf("state = %v, want idle", body["state"])
	}
	if body["last_command"] != nil {
		t.Errorf("last_command = %v, want null", body["last_command"])
	}
}

func TestTrackingHandler(t *testing.T) {
	tr := newFakeTracker()
	h := NewTrackingHandler(tr)

	rec := do(h, http.MethodPost, "/api/tracking", `{"enabled": false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if tr.Enabled() {
		t.Error("tracking should be disabled")
	}

	var resp trackingResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Enabled {
		t.Error("response should report enabled=false")
	}

	rec = do(h, http.MethodGet, "/api/tracking", "")
	json.NewDecoder(rec.Body).Decode(&resp)
	if rec.Code != http.StatusOK || resp.Enabled {
		t.Errorf("GET: code %d, enabled %v", rec.Code, resp.Enabled)
	}

	for _, body := range []string{`{}`, `not json`} {
		if rec := do(h, http.MethodPost, "/api/tracking", body); rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: expected status %d, got %d", body, http.StatusBadRequest, rec.Code)
		}
	}
	if rec := do(h, http.MethodDelete, "/api/tracking", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("DELETE: expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}

func TestPTZHandler(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		sendErr  error
		wantCode int
		wantCmd  *ptz.Command
	}{
		{"zoom", `{"command":"zoomin&5"}`, nil, http.StatusOK, &ptz.Command{Kind: ptz.KindZoom, Direction: ptz.In, Speed: 5}},
		{"stop", `{"command":"ptzstop"}`, nil, http.StatusOK, &ptz.Command{Kind: ptz.KindStop}},
		{"pan", `{"command":"left&12&10"}`, nil, http.StatusOK, &ptz.Command{Kind: ptz.KindPan, Direction: ptz.Left, Speed: 12}},
		{"unknown verb", `{"command":"spin&3"}`, nil, http.StatusBadRequest, nil},
		{"missing speed", `{"command":"zoomin"}`, nil, http.StatusBadRequest, nil},
		{"bad json", `{`, nil, http.StatusBadRequest, nil},
		{"camera unreachable", `{"command":"ptzstop"}`, errors.New("connection refused"), http.StatusBadGateway, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newFakeTracker()
			tr.sendErr = tt.sendErr
			rec := do(NewPTZHandler(tr), http.MethodPost, "/api/ptz", tt.body)

			if rec.Code != tt.wantCode {
				t.Fatalf("expected status %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
			if tt.wantCmd == nil {
				if len(tr.manual) != 0 {
					t.Errorf("unexpected commands %v", tr.manual)
				}
				return
			}
			if len(tr.manual) != 1 || tr.manual[0] != *tt.wantCmd {
				t.Errorf("sent %v, want %v", tr.manual, *tt.wantCmd)
			}
		})
	}

	if rec := do(NewPTZHandler(newFakeTracker()), http.MethodGet, "/api/ptz", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET: expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}

func TestConfigHandler_Get(t *testing.T) {
	rec := do(NewConfigHandler(newFakeTracker(), nil), http.MethodGet, "/api/config", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var body tuningBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	want := tuningBody{
		DeadZone: 50, Threshold: 50, CommandDelay: 0.2,
		PanSpeed: 12, TiltSpeed: 12, AlphaX: 0.1, AlphaY: 0.1,
		TieBreak: "larger-error",
	}
	if body != want {
		t.Errorf("got %+v, want %+v", body, want)
	}
}

func TestConfigHandler_PutMergesAndPersists(t *testing.T) {
	s := newTestStore(t)
	tr := newFakeTracker()
	h := NewConfigHandler(tr, s)

	rec := do(h, http.MethodPut, "/api/config", `{"dead_zone": 80, "command_delay": 0.5, "tie_break": "alternate"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	got := tr.Tuning()
	if got.DeadZone != 80 || got.CommandDelay != 500*time.Millisecond || got.TieBreak != tracking.TieBreakAlternate {
		t.Errorf("tuning = %+v", got)
	}
	if got.PanSpeed != 12 || got.AlphaX != 0.1 {
		t.Errorf("unspecified fields changed: %+v", got)
	}

	var saved tracking.Config
	if err := s.Settings().Get(TuningKey, &saved); err != nil {
		t.Fatalf("Settings().Get() error = %v", err)
	}
	if saved != got {
		t.Errorf("saved %+v, want %+v", saved, got)
	}
}

func TestConfigHandler_ConcurrentPartialPuts(t *testing.T) {
	s := newTestStore(t)
	tr := newFakeTracker()
	h := NewConfigHandler(tr, s)

	const n = 30
	var wg sync.WaitGroup
	for _, field := range []string{"dead_zone", "pan_speed"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 1; i <= n; i++ {
				body, _ := json.Marshal(map[string]int{field: i})
				if rec := do(h, http.MethodPut, "/api/config", string(body)); rec.Code != http.StatusOK {
					t.Errorf("PUT %s: status %d", body, rec.Code)
				}
			}
		}()
	}
	wg.Wait()

	got := tr.Tuning()
	if got.DeadZone != n || got.PanSpeed != n {
		t.Errorf("tuning = %+v, want dead_zone and pan_speed both %d", got, n)
	}
	var saved tracking.Config
	if err := s.Settings().Get(TuningKey, &saved); err != nil {
		t.Fatalf("Settings().Get() error = %v", err)
	}
	if saved != got {
		t.Errorf("saved %+v, want %+v", saved, got)
	}
}

func TestConfigHandler_PutRejectsInvalid(t *testing.T) {
	s := newTestStore(t)
	tr := newFakeTracker()
	h := NewConfigHandler(tr, s)

	for _, body := range []string{
		`{"alpha_x": 0}`,
		`{"alpha_y": 1.5}`,
		`{"pan_speed": -1}`,
		`{"command_delay": -1}`,
		`{"tie_break": "random"}`,
		`[`,
	} {
		rec := do(h, http.MethodPut, "/api/config", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: expected status %d, got %d", body, http.StatusBadRequest, rec.Code)
		}
	}

	if tr.Tuning() != tracking.DefaultConfig() {
		t.Error("rejected updates must not change the tuning")
	}
	var saved tracking.Config
	if err := s.Settings().Get(TuningKey, &saved); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("nothing should be persisted, got err = %v", err)
	}
}

func TestSessionsHandler(t *testing.T) {
	s := newTestStore(t)
	h := NewSessionsHandler(s)

	sess, err := s.Sessions().Start("192.168.1.100", "0")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	at := time.Now()
	s.Commands().Record(store.NewCommandRecord(sess.ID, ptz.Pan(ptz.Right, 12), nil, at))
	s.Commands().Record(store.NewCommandRecord(sess.ID, ptz.Stop(), errors.New("timeout"), at.Add(time.Second)))
	s.Commands().Record(store.NewCommandRecord("", ptz.Zoom(ptz.In, 5), nil, at.Add(2*time.Second)))

	t.Run("list", func(t *testing.T) {
		rec := do(h, http.MethodGet, "/api/sessions", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		var resp listSessionsResponse
		json.NewDecoder(rec.Body).Decode(&resp)
		if len(resp.Sessions) != 1 || resp.Sessions[0].ID != sess.ID {
			t.Errorf("sessions = %+v", resp.Sessions)
		}
		if resp.Sessions[0].EndedAt != "" {
			t.Error("open session should have no end time")
		}
	})

	t.Run("get", func(t *testing.T) {
		rec := do(h, http.MethodGet, "/api/sessions/"+sess.ID, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		var resp sessionResponse
		json.NewDecoder(rec.Body).Decode(&resp)
		if resp.Camera != "192.168.1.100" {
			t.Errorf("camera = %q", resp.Camera)
		}
	})

	t.Run("commands", func(t *testing.T) {
		rec := do(h, http.MethodGet, "/api/sessions/"+sess.ID+"/commands", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		var resp listCommandsResponse
		json.NewDecoder(rec.Body).Decode(&resp)
		if len(resp.Commands) != 2 {
			t.Fatalf("got %d commands, want 2", len(resp.Commands))
		}
		if resp.Commands[0].Kind != "pan" || !resp.Commands[0].OK {
			t.Errorf("first = %+v", resp.Commands[0])
		}
		if resp.Commands[1].OK || resp.Commands[1].Error == "" {
			t.Errorf("second should be a failed stop: %+v", resp.Commands[1])
		}
	})

	t.Run("not found", func(t *testing.T) {
		for _, path := range []string{"/api/sessions/missing", "/api/sessions/missing/commands", "/api/sessions/a/b/c"} {
			if rec := do(h, http.MethodGet, path, ""); rec.Code != http.StatusNotFound {
				t.Errorf("%s: expected status %d, got %d", path, http.StatusNotFound, rec.Code)
			}
		}
	})

	t.Run("method not allowed", func(t *testing.T) {
		if rec := do(h, http.MethodDelete, "/api/sessions/"+sess.ID, ""); rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})
}

func TestCommandsHandler(t *testing.T) {
	s := newTestStore(t)
	h := NewCommandsHandler(s)

	for i := 1; i <= 5; i++ {
		s.Commands().Record(store.NewCommandRecord("", ptz.Zoom(ptz.In, i), nil, time.Now()))
	}

	rec := do(h, http.MethodGet, "/api/commands?limit=2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var resp listCommandsResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if len(resp.Commands) != 2 {
		t.Fatalf("got %d commands, want 2", len(resp.Commands))
	}
	if resp.Commands[0].Speed != 5 || resp.Commands[1].Speed != 4 {
		t.Errorf("expected newest first, got %+v", resp.Commands)
	}

	rec = do(h, http.MethodGet, "/api/commands", "")
	json.NewDecoder(rec.Body).Decode(&resp)
	if len(resp.Commands) != 5 {
		t.Errorf("default limit: got %d commands, want 5", len(resp.Commands))
	}

	for _, q := range []string{"limit=0", "limit=-3", "limit=abc"} {
		if rec := do(h, http.MethodGet, "/api/commands?"+q, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status %d, got %d", q, http.StatusBadRequest, rec.Code)
		}
	}
}
