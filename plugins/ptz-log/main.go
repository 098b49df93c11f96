// Package main provides a PTZ driver plugin that records commands instead
// of moving a camera. It reads one request from stdin and writes one
// response to stdout.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// Request represents the input from the plugin executor.
type Request struct {
	Action    string          `json:"action"`
	Verb      string          `json:"verb"`
	Kind      string          `json:"kind"`
	Direction string          `json:"direction,omitempty"`
	Speed     int             `json:"speed,omitempty"`
	Config    json.RawMessage `json:"config,omitempty"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Config is the driver configuration passed with every request.
type Config struct {
	File string `json:"file"`
	Fail bool   `json:"fail"`
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	if req.Action != "ptz" {
		writeErrorResponse(fmt.Sprintf("unknown action: %s", req.Action))
		return
	}
	if req.Verb == "" {
		writeErrorResponse("verb is required")
		return
	}

	var cfg Config
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			writeErrorResponse(fmt.Sprintf("failed to parse config: %v", err))
			return
		}
	}
	if cfg.Fail {
		writeErrorResponse("camera rejected " + req.Verb)
		return
	}

	if err := record(cfg.File, req); err != nil {
		writeErrorResponse(err.Error())
		return
	}

	data, _ := json.Marshal(map[string]string{"verb": req.Verb})
	json.NewEncoder(os.Stdout).Encode(Response{Success: true, Data: data})
}

// record appends one line per command to file, or to stderr when file is
// empty.
func record(file string, req Request) error {
	var w io.Writer = os.Stderr
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("open log: %w", err)
		}
		defer f.Close()
		w = f
	}
	_, err := fmt.Fprintf(w, "%s %s\n", time.Now().UTC().Format(time.RFC3339Nano), req.Verb)
	return err
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	json.NewEncoder(os.Stdout).Encode(Response{Success: false, Error: errMsg})
}
