package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ayusman/ptzfollow/internal/log"
	"github.com/ayusman/ptzfollow/internal/ptz"
)

func sendCmd(args []string) error {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New(`send needs exactly one command, e.g. "zoomin&5"`)
	}

	cmd, err := ptz.ParseCommand(fs.Arg(0))
	if err != nil {
		return err
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	channel, err := newChannel(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Camera.Timeout)
	defer cancel()
	if err := channel.Send(ctx, cmd); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "sent %s\n", cmd)
	return nil
}

// demoSequence moves every axis once, then stops each of them.
func demoSequence() []ptz.Command {
	return []ptz.Command{
		ptz.Pan(ptz.Left, 12),
		ptz.Tilt(ptz.Up, 10),
		ptz.Zoom(ptz.In, 5),
		ptz.Focus(ptz.In, 3),
		ptz.Stop(),
		ptz.ZoomStop(),
		ptz.FocusStop(),
	}
}

func demoCmd(args []string) error {
	fs := flag.NewFlagSet("demo", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	step := fs.Duration("step", time.Second, "pause between commands")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	channel, err := newChannel(cfg)
	if err != nil {
		return err
	}

	return runDemo(context.Background(), channel, cfg.Camera.Timeout, *step)
}

// runDemo sends the demo sequence. A failed command is reported and the
// sequence continues, so the final stops are always attempted.
func runDemo(ctx context.Context, channel ptz.Channel, timeout, step time.Duration) error {
	var failed []string
	for i, cmd := range demoSequence() {
		if i > 0 && step > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(step):
			}
		}

		sendCtx, cancel := context.WithTimeout(ctx, timeout)
		err := channel.Send(sendCtx, cmd)
		cancel()

		if err != nil {
			log.Warn("demo command failed", "command", cmd.String(), "error", err)
			failed = append(failed, cmd.String())
			continue
		}
		log.Info("demo command sent", "command", cmd.String())
	}

	if len(failed) > 0 {
		return fmt.Errorf("%d demo commands failed: %s", len(failed), strings.Join(failed, ", "))
	}
	return nil
}
