// Package plugin runs external camera drivers. A driver is an executable in
// its own directory next to a plugin.json manifest; it receives one JSON
// Request on stdin per command and answers with a JSON Response on stdout.
// This lets cameras that do not speak the CGI protocol (VISCA, ONVIF) be
// driven without changing the tracking loop.
package plugin

import "encoding/json"

// ActionCommand is the request action for a PTZ command.
const ActionCommand = "ptz"

// Manifest describes a plugin's metadata and capabilities.
type Manifest struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Executable  string `json:"executable"`
	// Commands lists the command kinds the driver accepts ("pan", "zoom",
	// ...). Empty means all.
	Commands     []string        `json:"commands,omitempty"`
	ConfigSchema json.RawMessage `json:"configSchema,omitempty"`
}

// Request represents a request sent to a plugin for execution.
type Request struct {
	Action string `json:"action"`
	// Verb is the command in CGI form, e.g. "left&12&10" or "zoomstop".
	Verb      string          `json:"verb"`
	Kind      string          `json:"kind"`
	Direction string          `json:"direction,omitempty"`
	Speed     int             `json:"speed,omitempty"`
	Config    json.RawMessage `json:"config,omitempty"`
}

// Response represents the response from a plugin execution.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin represents a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}

// Supports reports whether the manifest accepts commands of kind.
func (p *Plugin) Supports(kind string) bool {
	if len(p.Manifest.Commands) == 0 {
		return true
	}
	for _, k := range p.Manifest.Commands {
		if k == kind {
			return true
		}
	}
	return false
}
