package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/ayusman/ptzfollow/internal/app"
	"github.com/ayusman/ptzfollow/internal/capture"
	"github.com/ayusman/ptzfollow/internal/config"
	"github.com/ayusman/ptzfollow/internal/log"
	"github.com/ayusman/ptzfollow/internal/server"
	"github.com/ayusman/ptzfollow/internal/tray"
)

func runCmd(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	useTray := fs.Bool("tray", false, "show the system tray menu")
	source := fs.String("source", "", "camera index, file or stream URL (overrides config)")
	addr := fs.String("addr", "", "HTTP listen address (overrides config)")
	noServer := fs.Bool("no-server", false, "do not start the HTTP API")
	backend := fs.String("detector", "", "detector backend: mediapipe, yunet, cascade or mock (overrides config)")
	model := fs.String("model", "", "detector model file (overrides config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	if *source != "" {
		cfg.Source.URI = *source
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *noServer {
		cfg.Server.Disabled = true
	}
	if *backend != "" {
		cfg.Detector.Backend = *backend
	}
	if *model != "" {
		cfg.Detector.Model = *model
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return run(ctx, stop, cfg, *useTray)
}

func run(ctx context.Context, stop context.CancelFunc, cfg config.Config, useTray bool) error {
	src, err := capture.ParseSource(cfg.Source.URI)
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	channel, err := newChannel(cfg)
	if err != nil {
		return err
	}

	det, err := newDetector(cfg.Detector)
	if err != nil {
		return err
	}
	defer det.Close()

	a, err := app.New(app.Config{
		Tracking:         restoreTuning(st, cfg.Tracking),
		SendTimeout:      cfg.Camera.Timeout,
		MaxFrameFailures: cfg.Source.MaxFrameFailures,
		IdleFPS:          cfg.Source.IdleFPS,
		ActiveFPS:        cfg.Source.ActiveFPS,
		IdleTimeout:      cfg.Source.IdleTimeout,
		MotionThreshold:  cfg.Source.MotionThreshold,
		Enhance:          cfg.Source.Enhance,
		Annotate:         !cfg.Server.Disabled,
		CameraName:       cameraName(cfg),
		SourceName:       src.String(),
		Store:            st,
	}, capture.NewCamera(src), det, channel)
	if err != nil {
		return err
	}

	if !cfg.Server.Disabled {
		srv := server.New(server.Config{
			StaticDir: findWebDir(cfg),
			Store:     st,
			Tracker:   a,
		})
		go func() {
			if err := srv.Serve(ctx, cfg.Server.Addr); err != nil {
				log.Error("http server stopped", "error", err)
			}
		}()
	}

	log.Info("ptzfollow starting",
		"camera", cameraName(cfg), "driver", cfg.Camera.Driver,
		"source", src.String(), "detector", cfg.Detector.Backend)

	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(ctx) }()

	if !useTray {
		return <-runErr
	}

	t := tray.New()
	t.OnToggle(a.SetEnabled)
	t.OnQuit(stop)
	t.OnSettings(func() {
		if err := openBrowser(settingsURL(cfg.Server.Addr)); err != nil {
			log.Warn("open settings", "error", err)
		}
	})
	events, unsubscribe := a.Subscribe()
	defer unsubscribe()
	go t.Watch(events)

	done := make(chan error, 1)
	go func() {
		err := <-runErr
		done <- err
		t.Quit()
	}()

	// The tray must own the main goroutine on some platforms.
	t.Run()
	stop()
	return <-done
}

func cameraName(cfg config.Config) string {
	switch cfg.Camera.Driver {
	case config.DriverHTTP:
		if cfg.Camera.Port != "" {
			return cfg.Camera.Host + ":" + cfg.Camera.Port
		}
		return cfg.Camera.Host
	case config.DriverDryRun:
		return "dry-run"
	default:
		return "plugin:" + cfg.Camera.Driver
	}
}

func settingsURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/"
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

// findWebDir returns the configured static directory, or the first "web"
// directory found next to the working directory or in the data dir.
func findWebDir(cfg config.Config) string {
	if cfg.Server.StaticDir != "" {
		return cfg.Server.StaticDir
	}
	candidates := []string{"web", "../web", "../../web", cfg.DataDir + "/web"}
	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			log.Info(fmt.Sprintf("serving static files from %s", p))
			return p
		}
	}
	return ""
}
