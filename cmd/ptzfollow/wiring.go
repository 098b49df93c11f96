package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ayusman/ptzfollow/internal/config"
	"github.com/ayusman/ptzfollow/internal/detector"
	"github.com/ayusman/ptzfollow/internal/log"
	"github.com/ayusman/ptzfollow/internal/plugin"
	"github.com/ayusman/ptzfollow/internal/ptz"
	"github.com/ayusman/ptzfollow/internal/server/api"
	"github.com/ayusman/ptzfollow/internal/store"
	"github.com/ayusman/ptzfollow/internal/tracking"
)

// commonFlags are accepted by every subcommand.
type commonFlags struct {
	configPath string
	logLevel   string
	dryRun     bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", defaultConfigPath(), "YAML config file")
	fs.StringVar(&c.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")
	fs.BoolVar(&c.dryRun, "dry-run", false, "record commands in memory instead of moving the camera")
}

// load reads the config and initializes logging.
func (c *commonFlags) load() (config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	if c.dryRun {
		cfg.Camera.Driver = config.DriverDryRun
	}
	log.Init(cfg.LogLevel)
	return cfg, nil
}

func defaultConfigPath() string {
	if p := os.Getenv("PTZ_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "ptzfollow.yaml"
	}
	return filepath.Join(home, ".ptzfollow", "config.yaml")
}

// newChannel builds the command channel selected by the camera driver.
func newChannel(cfg config.Config) (ptz.Channel, error) {
	switch cfg.Camera.Driver {
	case config.DriverHTTP:
		c, err := ptz.NewClient(cfg.ClientConfig())
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.DriverDryRun:
		log.Info("dry run: commands are not sent to the camera")
		return ptz.NewRecorder(), nil
	}

	mgr := plugin.NewManager(cfg.PluginDir)
	if err := mgr.Discover(); err != nil {
		return nil, fmt.Errorf("discover plugins: %w", err)
	}
	var driverCfg []byte
	if len(cfg.Camera.DriverConfig) > 0 {
		b, err := json.Marshal(cfg.Camera.DriverConfig)
		if err != nil {
			return nil, fmt.Errorf("driver config: %w", err)
		}
		driverCfg = b
	}
	d, err := plugin.NewDriver(mgr, cfg.Camera.Driver, plugin.NewExecutor(cfg.Camera.Timeout), driverCfg)
	if err != nil {
		return nil, err
	}
	log.Info("using driver plugin", "name", d.Name(), "dir", cfg.PluginDir)
	return d, nil
}

// newDetector builds the configured detector. When the MediaPipe helper is
// missing and a model file is configured, the model's backend is used
// instead. Running without detection needs an explicit mock backend.
func newDetector(cfg config.DetectorConfig) (detector.Detector, error) {
	dc := detector.Config{
		Model:         cfg.Model,
		Script:        cfg.Script,
		MinConfidence: cfg.MinConfidence,
	}

	switch cfg.Backend {
	case config.BackendYuNet:
		d, err := detector.NewYuNetDetector(dc)
		if err != nil {
			return nil, err
		}
		return d, nil
	case config.BackendCascade:
		d, err := detector.NewCascadeDetector(dc)
		if err != nil {
			return nil, err
		}
		return d, nil
	case config.BackendMock:
		log.Warn("mock detector: no subject will ever be detected")
		return detector.NewMockDetector(), nil
	}

	d, err := detector.NewMediaPipeDetector(dc)
	if errors.Is(err, detector.ErrUnavailable) {
		if backend := modelBackend(cfg.Model); backend != "" {
			log.Warn("MediaPipe detector unavailable, using model", "backend", backend, "model", cfg.Model, "error", err)
			cfg.Backend = backend
			return newDetector(cfg)
		}
		return nil, fmt.Errorf("%w; configure detector.backend yunet or cascade with a model, or mock to run without detection", err)
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// modelBackend infers the detector backend from a model file name.
func modelBackend(model string) string {
	switch strings.ToLower(filepath.Ext(model)) {
	case ".onnx":
		return config.BackendYuNet
	case ".xml":
		return config.BackendCascade
	}
	return ""
}

// openStore opens the database under the data directory.
func openStore(cfg config.Config) (*store.Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return store.New(cfg.DBPath())
}

// restoreTuning returns the tuning saved through the API, or base when none
// is stored or the stored value no longer validates.
func restoreTuning(st *store.Store, base tracking.Config) tracking.Config {
	var saved tracking.Config
	if err := st.Settings().Get(api.TuningKey, &saved); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Warn("load saved tuning", "error", err)
		}
		return base
	}
	if err := saved.Validate(); err != nil {
		log.Warn("ignoring saved tuning", "error", err)
		return base
	}
	log.Info("restored saved tuning")
	return saved
}
