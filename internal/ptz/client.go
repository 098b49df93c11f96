package ptz

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Default client settings.
const (
	DefaultTimeout   = time.Second
	DefaultIdleSpeed = 10
	cgiPath          = "/cgi-bin/ptzctrl.cgi"
)

// ErrTransport is wrapped by every TransportError.
var ErrTransport = errors.New("ptz transport error")

// Channel delivers commands to a camera. Send is synchronous and
// best-effort: it never retries, and returns nil only when the camera
// acknowledged the command.
type Channel interface {
	Send(ctx context.Context, cmd Command) error
}

// TransportError reports a command that the camera did not acknowledge.
type TransportError struct {
	Command    Command
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("ptz %s: unexpected status %d", e.Command, e.StatusCode)
	}
	return fmt.Sprintf("ptz %s: %v", e.Command, e.Err)
}

// Unwrap lets errors.Is match both ErrTransport and the underlying cause.
func (e *TransportError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTransport}
	}
	return []error{ErrTransport, e.Err}
}

// ClientConfig configures the HTTP CGI client.
type ClientConfig struct {
	Host      string        // camera IP or hostname
	Port      string        // optional, defaults to 80
	User      string        // optional basic-auth user
	Pass      string        // optional basic-auth password
	Timeout   time.Duration // upper bound for a single command
	IdleSpeed int           // speed sent for the axis that is not moving
}

// Client sends commands to the camera's ptzctrl.cgi endpoint.
type Client struct {
	baseURL   string
	user      string
	pass      string
	idleSpeed int
	timeout   time.Duration
	http      *http.Client
}

// NewClient creates a Client for the given camera.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("ptz: camera host is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.IdleSpeed <= 0 {
		cfg.IdleSpeed = DefaultIdleSpeed
	}

	host := cfg.Host
	if cfg.Port != "" && cfg.Port != "80" {
		host = net.JoinHostPort(cfg.Host, cfg.Port)
	}

	return &Client{
		baseURL:   "http://" + host + cgiPath,
		user:      cfg.User,
		pass:      cfg.Pass,
		idleSpeed: cfg.IdleSpeed,
		timeout:   cfg.Timeout,
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   cfg.Timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// newClientForURL is used by tests to point the client at an httptest server.
func newClientForURL(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:   baseURL + cgiPath,
		idleSpeed: DefaultIdleSpeed,
		timeout:   timeout,
		http:      &http.Client{Timeout: timeout},
	}
}

// URL returns the request URL for cmd.
func (c *Client) URL(cmd Command) (string, error) {
	arg, err := Encode(cmd, c.idleSpeed)
	if err != nil {
		return "", err
	}
	return c.baseURL + "?ptzcmd&" + arg, nil
}

// Send issues cmd and waits at most the configured timeout for the camera
// to acknowledge it.
func (c *Client) Send(ctx context.Context, cmd Command) error {
	url, err := c.URL(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &TransportError{Command: cmd, Err: err}
	}
	if c.user != "" {
		req.SetBasicAuth(c.user, c.pass)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Command: cmd, Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &TransportError{Command: cmd, StatusCode: resp.StatusCode}
	}
	return nil
}
