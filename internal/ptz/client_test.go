package ptz

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cgiServer records the raw query of each request it receives.
type cgiServer struct {
	mu      sync.Mutex
	queries []string
	status  int
	delay   time.Duration
}

func (s *cgiServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-r.Context().Done():
			return
		}
	}
	s.mu.Lock()
	s.queries = append(s.queries, r.URL.Path+"?"+r.URL.RawQuery)
	status := s.status
	s.mu.Unlock()
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
}

func (s *cgiServer) got() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

func TestClient_SendEncodesCGIQuery(t *testing.T) {
	srv := &cgiServer{}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	c := newClientForURL(ts.URL, time.Second)
	ctx := context.Background()

	require.NoError(t, c.Send(ctx, Pan(Left, 12)))
	require.NoError(t, c.Send(ctx, Tilt(Down, 12)))
	require.NoError(t, c.Send(ctx, Zoom(In, 5)))
	require.NoError(t, c.Send(ctx, Stop()))

	assert.Equal(t, []string{
		"/cgi-bin/ptzctrl.cgi?ptzcmd&left&12&10",
		"/cgi-bin/ptzctrl.cgi?ptzcmd&down&10&12",
		"/cgi-bin/ptzctrl.cgi?ptzcmd&zoomin&5",
		"/cgi-bin/ptzctrl.cgi?ptzcmd&ptzstop",
	}, srv.got())
}

func TestClient_NonOKIsTransportError(t *testing.T) {
	srv := &cgiServer{status: http.StatusServiceUnavailable}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	c := newClientForURL(ts.URL, time.Second)
	err := c.Send(context.Background(), Pan(Right, 12))
	require.Error(t, err)

	assert.True(t, errors.Is(err, ErrTransport))
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusServiceUnavailable, te.StatusCode)
	assert.Equal(t, Pan(Right, 12), te.Command)
}

func TestClient_TimeoutIsBounded(t *testing.T) {
	srv := &cgiServer{delay: 2 * time.Second}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	c := newClientForURL(ts.URL, 50*time.Millisecond)

	start := time.Now()
	err := c.Send(context.Background(), Stop())
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
	assert.Less(t, elapsed, time.Second, "send must not block past its timeout")
}

func TestClient_CancelledContext(t *testing.T) {
	srv := &cgiServer{}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	c := newClientForURL(ts.URL, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Send(ctx, Stop())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, srv.got())
}

func TestClient_InvalidCommandNotSent(t *testing.T) {
	srv := &cgiServer{}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	c := newClientForURL(ts.URL, time.Second)
	err := c.Send(context.Background(), Pan(Up, 12))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidCommand))
	assert.False(t, errors.Is(err, ErrTransport))
	assert.Empty(t, srv.got())
}

func TestClient_BasicAuth(t *testing.T) {
	var user, pass string
	var ok bool
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok = r.BasicAuth()
	}))
	defer ts.Close()

	c := newClientForURL(ts.URL, time.Second)
	c.user, c.pass = "admin", "secret"

	require.NoError(t, c.Send(context.Background(), Stop()))
	assert.True(t, ok)
	assert.Equal(t, "admin", user)
	assert.Equal(t, "secret", pass)
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(ClientConfig{})
	assert.Error(t, err, "host is required")

	c, err := NewClient(ClientConfig{Host: "192.168.116.111"})
	require.NoError(t, err)
	url, err := c.URL(Pan(Left, 12))
	require.NoError(t, err)
	assert.Equal(t, "http://192.168.116.111/cgi-bin/ptzctrl.cgi?ptzcmd&left&12&10", url)
	assert.Equal(t, DefaultTimeout, c.timeout)

	c, err = NewClient(ClientConfig{Host: "cam.local", Port: "8080", IdleSpeed: 7})
	require.NoError(t, err)
	url, err = c.URL(Tilt(Up, 12))
	require.NoError(t, err)
	assert.Equal(t, "http://cam.local:8080/cgi-bin/ptzctrl.cgi?ptzcmd&up&7&12", url)
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	ctx := context.Background()

	require.NoError(t, r.Send(ctx, Pan(Left, 12)))

	r.SetError(errors.New("unreachable"))
	err := r.Send(ctx, Stop())
	assert.True(t, errors.Is(err, ErrTransport))

	r.SetError(nil)
	require.NoError(t, r.Send(ctx, Stop()))

	assert.Equal(t, []Command{Pan(Left, 12), Stop()}, r.Sent())
}
