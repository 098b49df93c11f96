// Package config loads ptzfollow settings from defaults, an optional YAML
// file, and PTZ_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ayusman/ptzfollow/internal/ptz"
	"github.com/ayusman/ptzfollow/internal/tracking"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Detector backends.
const (
	BackendMediaPipe = "mediapipe"
	BackendYuNet     = "yunet"
	BackendCascade   = "cascade"
	BackendMock      = "mock"
)

// Camera drivers. Any other value names a driver plugin.
const (
	DriverHTTP   = "http"
	DriverDryRun = "dry-run"
)

// Config is the complete application configuration.
type Config struct {
	Camera   CameraConfig    `yaml:"camera"`
	Tracking tracking.Config `yaml:"tracking"`
	Source   SourceConfig    `yaml:"source"`
	Detector DetectorConfig  `yaml:"detector"`
	Server   ServerConfig    `yaml:"server"`

	DataDir   string `yaml:"data_dir"`
	PluginDir string `yaml:"plugin_dir"`
	LogLevel  string `yaml:"log_level"`
}

// CameraConfig describes how PTZ commands reach the camera.
type CameraConfig struct {
	Host      string        `yaml:"host"`
	Port      string        `yaml:"port"`
	User      string        `yaml:"user"`
	Pass      string        `yaml:"pass"`
	Timeout   time.Duration `yaml:"timeout"`
	IdleSpeed int           `yaml:"idle_speed"`
	Driver    string        `yaml:"driver"`

	// DriverConfig is passed to driver plugins as JSON.
	DriverConfig map[string]any `yaml:"driver_config"`
}

// SourceConfig describes the video input and frame pacing.
type SourceConfig struct {
	// URI is a device index ("0"), a file path, or a stream URL.
	URI              string        `yaml:"uri"`
	Enhance          bool          `yaml:"enhance"`
	MotionThreshold  float64       `yaml:"motion_threshold"`
	IdleFPS          int           `yaml:"idle_fps"`
	ActiveFPS        int           `yaml:"active_fps"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	MaxFrameFailures int           `yaml:"max_frame_failures"`
}

// DetectorConfig selects the subject detector.
type DetectorConfig struct {
	Backend       string  `yaml:"backend"`
	Model         string  `yaml:"model"`
	Script        string  `yaml:"script"`
	MinConfidence float64 `yaml:"min_confidence"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr      string `yaml:"addr"`
	StaticDir string `yaml:"static_dir"`
	Disabled  bool   `yaml:"disabled"`
}

// Default returns a configuration that tracks with the first local camera
// and drives a camera at 192.168.1.100.
func Default() Config {
	dataDir := ".ptzfollow"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".ptzfollow")
	}

	return Config{
		Camera: CameraConfig{
			Host:      "192.168.1.100",
			Timeout:   ptz.DefaultTimeout,
			IdleSpeed: ptz.DefaultIdleSpeed,
			Driver:    DriverHTTP,
		},
		Tracking: tracking.DefaultConfig(),
		Source: SourceConfig{
			URI:              "0",
			Enhance:          true,
			MotionThreshold:  1.0,
			IdleFPS:          5,
			ActiveFPS:        15,
			IdleTimeout:      2 * time.Second,
			MaxFrameFailures: 3,
		},
		Detector: DetectorConfig{
			Backend:       BackendMediaPipe,
			MinConfidence: 0.5,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		DataDir:   dataDir,
		PluginDir: filepath.Join(dataDir, "plugins"),
		LogLevel:  "info",
	}
}

// Load reads path (skipped when empty or missing) over the defaults, then
// applies environment overrides and validates the result.
func Load(path string) (Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Tracking.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.Camera.Driver == "" {
		return fmt.Errorf("%w: camera driver is required", ErrInvalid)
	}
	if c.Camera.Driver == DriverHTTP && c.Camera.Host == "" {
		return fmt.Errorf("%w: camera host is required", ErrInvalid)
	}
	if c.Camera.Port != "" {
		if p, err := strconv.Atoi(c.Camera.Port); err != nil || p <= 0 || p > 65535 {
			return fmt.Errorf("%w: camera port %q", ErrInvalid, c.Camera.Port)
		}
	}
	if c.Camera.Timeout <= 0 {
		return fmt.Errorf("%w: camera timeout must be positive", ErrInvalid)
	}
	if c.Source.URI == "" {
		return fmt.Errorf("%w: source is required", ErrInvalid)
	}
	if c.Source.IdleFPS <= 0 || c.Source.ActiveFPS <= 0 {
		return fmt.Errorf("%w: frame rates must be positive", ErrInvalid)
	}
	if c.Source.MaxFrameFailures <= 0 {
		return fmt.Errorf("%w: max frame failures must be positive", ErrInvalid)
	}
	switch c.Detector.Backend {
	case BackendMediaPipe, BackendYuNet, BackendCascade, BackendMock:
	default:
		return fmt.Errorf("%w: unknown detector backend %q", ErrInvalid, c.Detector.Backend)
	}
	if (c.Detector.Backend == BackendYuNet || c.Detector.Backend == BackendCascade) && c.Detector.Model == "" {
		return fmt.Errorf("%w: detector %s needs a model path", ErrInvalid, c.Detector.Backend)
	}
	if c.Detector.MinConfidence < 0 || c.Detector.MinConfidence > 1 {
		return fmt.Errorf("%w: min confidence must be in [0,1]", ErrInvalid)
	}
	return nil
}

// ClientConfig returns the HTTP camera client settings.
func (c Config) ClientConfig() ptz.ClientConfig {
	return ptz.ClientConfig{
		Host:      c.Camera.Host,
		Port:      c.Camera.Port,
		User:      c.Camera.User,
		Pass:      c.Camera.Pass,
		Timeout:   c.Camera.Timeout,
		IdleSpeed: c.Camera.IdleSpeed,
	}
}

// DBPath is the SQLite database location inside DataDir.
func (c Config) DBPath() string {
	return filepath.Join(c.DataDir, "ptzfollow.db")
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	integer := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, key, v)
		}
		*dst = n
		return nil
	}
	float := func(key string, dst *float64) error {
		v, ok := lookup(key)
		if !ok {
			return nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a number", ErrInvalid, key, v)
		}
		*dst = f
		return nil
	}

	str("PTZ_CAMERA_IP", &cfg.Camera.Host)
	str("PTZ_CAMERA_PORT", &cfg.Camera.Port)
	str("PTZ_CAMERA_USER", &cfg.Camera.User)
	str("PTZ_CAMERA_PASS", &cfg.Camera.Pass)
	str("PTZ_SOURCE", &cfg.Source.URI)
	str("PTZ_LOG_LEVEL", &cfg.LogLevel)
	str("PTZ_ADDR", &cfg.Server.Addr)
	str("PTZ_DRIVER", &cfg.Camera.Driver)

	for key, dst := range map[string]*int{
		"PTZ_DEAD_ZONE":          &cfg.Tracking.DeadZone,
		"PTZ_PAN_TILT_THRESHOLD": &cfg.Tracking.Threshold,
		"PTZ_PAN_SPEED":          &cfg.Tracking.PanSpeed,
		"PTZ_TILT_SPEED":         &cfg.Tracking.TiltSpeed,
	} {
		if err := integer(key, dst); err != nil {
			return err
		}
	}
	if err := float("PTZ_ALPHA_X", &cfg.Tracking.AlphaX); err != nil {
		return err
	}
	if err := float("PTZ_ALPHA_Y", &cfg.Tracking.AlphaY); err != nil {
		return err
	}

	if v, ok := lookup("PTZ_COMMAND_DELAY"); ok {
		d, err := tracking.ParseSeconds(v)
		if err != nil {
			return fmt.Errorf("%w: PTZ_COMMAND_DELAY: %w", ErrInvalid, err)
		}
		cfg.Tracking.CommandDelay = d
	}
	return nil
}
