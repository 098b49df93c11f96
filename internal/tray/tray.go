// Package tray provides a system tray menu for toggling tracking and
// watching the commands sent to the camera.
package tray

import (
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/ptzfollow/internal/app"
	"github.com/ayusman/ptzfollow/internal/ptz"
)

// Tray represents the system tray application.
type Tray struct {
	onToggle   func(enabled bool)
	onSettings func()
	onQuit     func()
	enabled    bool
	state      string
	last       string
	mu         sync.RWMutex

	// Menu items stored for later updates
	menuToggle      *systray.MenuItem
	menuState       *systray.MenuItem
	menuLastCommand *systray.MenuItem
}

// New creates a new Tray instance with tracking enabled.
func New() *Tray {
	return &Tray{
		enabled: true,
		state:   "idle",
	}
}

// OnToggle sets the callback function to be called when the enabled state is toggled.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnSettings sets the callback function to be called when the settings menu item is clicked.
func (t *Tray) OnSettings(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSettings = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit closes the tray from outside the menu.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("PTZ")
	systray.SetTooltip("ptzfollow camera tracking")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Toggle automatic tracking")
	systray.AddSeparator()

	t.menuState = systray.AddMenuItem(stateTitle(t.state), "Tracking state")
	t.menuState.Disable()
	t.menuLastCommand = systray.AddMenuItem(lastTitle(t.last), "Last command sent to the camera")
	t.menuLastCommand.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuSettings := systray.AddMenuItem("Open Settings...", "Open settings in browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit ptzfollow")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuSettings.ClickedCh:
				t.handleSettings()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

// handleToggle handles the toggle menu item click.
func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

// handleSettings handles the settings menu item click.
func (t *Tray) handleSettings() {
	t.mu.RLock()
	callback := t.onSettings
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetEnabled reflects an enabled state changed elsewhere, e.g. by the API.
// The toggle callback is not called.
func (t *Tray) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
}

// SetState updates the tracking state line.
func (t *Tray) SetState(state string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = state
	if t.menuState != nil {
		t.menuState.SetTitle(stateTitle(state))
	}
}

// SetLastCommand updates the last command line.
func (t *Tray) SetLastCommand(cmd ptz.Command) {
	verb, err := ptz.Encode(cmd, ptz.DefaultIdleSpeed)
	if err != nil {
		verb = cmd.String()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = verb
	if t.menuLastCommand != nil {
		t.menuLastCommand.SetTitle(lastTitle(verb))
	}
}

// Watch applies loop events to the menu until events is closed.
func (t *Tray) Watch(events <-chan app.Event) {
	for e := range events {
		t.apply(e)
	}
}

func (t *Tray) apply(e app.Event) {
	switch e.Type {
	case app.EventCommand:
		if e.OK && e.Command != nil {
			t.SetLastCommand(*e.Command)
		}
	case app.EventState:
		t.SetState(e.State)
	case app.EventEnabled:
		if e.Enabled != nil {
			t.SetEnabled(*e.Enabled)
		}
	case app.EventSource:
		t.SetState("source failed")
	}
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// State returns the state line value.
func (t *Tray) State() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// LastCommand returns the last command verb, or "" before any command.
func (t *Tray) LastCommand() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last
}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Tracking"
	}
	return "○ Paused"
}

func stateTitle(state string) string {
	return "State: " + state
}

func lastTitle(verb string) string {
	if verb == "" {
		return "Last: none"
	}
	return "Last: " + verb
}
