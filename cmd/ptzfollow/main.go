// Command ptzfollow keeps a detected face centered by steering a PTZ camera.
//
// Usage:
//
//	ptzfollow [run] [-config file] [-tray] [-source uri] [-detector name -model file] [-dry-run]
//	ptzfollow send [-config file] <verb>     e.g. send zoomin&5, send ptzstop
//	ptzfollow demo [-config file] [-step 1s]
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ayusman/ptzfollow/internal/app"
	"github.com/ayusman/ptzfollow/internal/log"
)

func main() {
	if err := dispatch(os.Args[1:]); err != nil {
		log.Error("ptzfollow failed", "error", err)
		if errors.Is(err, app.ErrSourceFailure) {
			fmt.Fprintln(os.Stderr, "video source failed:", err)
		}
		os.Exit(1)
	}
}

// dispatch picks the subcommand. Without one, or when the first argument is
// a flag, it runs the tracking loop.
func dispatch(args []string) error {
	name := "run"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		name, args = args[0], args[1:]
	}

	switch name {
	case "run":
		return runCmd(args)
	case "send":
		return sendCmd(args)
	case "demo":
		return demoCmd(args)
	case "help":
		usage()
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command %q", name)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `ptzfollow - PTZ camera face tracking

Commands:
  run     track the subject and serve the control API (default)
  send    send one camera command, e.g. "zoomin&5" or "ptzstop"
  demo    exercise pan, tilt, zoom and focus, then stop everything

Run "ptzfollow <command> -h" for the flags of a command.
`)
}
