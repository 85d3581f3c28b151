// Package tray provides a macOS system tray interface for the Cuerpo Sonoro
// movement-to-music engine.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"
)

// Tray represents the macOS system tray application.
type Tray struct {
	onToggle  func(enabled bool)
	onMonitor func()
	onQuit    func()
	enabled   bool
	mu        sync.RWMutex

	// Menu items stored for later updates
	menuToggle *systray.MenuItem
	menuZone   *systray.MenuItem
}

// New creates a new Tray instance with enabled state set to true by default.
func New() *Tray {
	return &Tray{
		enabled: true,
	}
}

// OnToggle sets the callback function to be called when the enabled state is toggled.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnMonitor sets the callback function to be called when the monitor menu item is clicked.
func (t *Tray) OnMonitor(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onMonitor = fn
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

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	// Set the tray title and tooltip
	systray.SetTitle("Cuerpo Sonoro")
	systray.SetTooltip("Cuerpo Sonoro Movement Sonification")

	// Create menu items
	t.menuToggle = systray.AddMenuItem("● Sounding", "Toggle sound output")
	systray.AddSeparator()

	t.menuZone = systray.AddMenuItem("Zone: —", "Current stage zone")
	t.menuZone.Disable()
	systray.AddSeparator()

	menuMonitor := systray.AddMenuItem("Open Monitor...", "Open the feature monitor in browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Cuerpo Sonoro")

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuMonitor.ClickedCh:
				t.handleMonitor()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

// onExit is called when the system tray is about to exit.
// It performs cleanup tasks.
func (t *Tray) onExit() {
	// Cleanup resources if needed
}

// handleToggle handles the toggle menu item click.
func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled

	// Update menu item text based on new state
	if enabled {
		t.menuToggle.SetTitle("● Sounding")
	} else {
		t.menuToggle.SetTitle("○ Muted")
	}

	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

// handleMonitor handles the monitor menu item click.
func (t *Tray) handleMonitor() {
	t.mu.RLock()
	callback := t.onMonitor
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

// SetZone updates the current zone display in the menu.
func (t *Tray) SetZone(zone int) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuZone != nil {
		t.menuZone.SetTitle(fmt.Sprintf("Zone: %d", zone))
	}
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}
