// Package ui puts the daemon in the system tray: pipeline status at a
// glance, pause/resume for the analysis queue, and a clean quit. The
// daemon runs headless without it when VIBECUT_HEADLESS is set.
package ui

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/getlantern/systray"

	"github.com/ldang04/vibecut/internal/pipeline"
)

const statusRefreshInterval = 2 * time.Second

type Tray struct {
	runner *pipeline.Runner
	logger *slog.Logger
	onQuit func()

	statusItem *systray.MenuItem
	pauseItem  *systray.MenuItem
}

type TrayConfig struct {
	Runner *pipeline.Runner
	Logger *slog.Logger
	OnQuit func()
}

func NewTray(cfg TrayConfig) *Tray {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Tray{
		runner: cfg.Runner,
		logger: logger.With("component", "tray"),
		onQuit: cfg.OnQuit,
	}
}

// Run blocks on the platform event loop until Quit. It must be called
// from the main goroutine on macOS.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("VibeCut")
	systray.SetTooltip("VibeCut daemon")

	t.statusItem = systray.AddMenuItem("Status: idle", "Analysis pipeline status")
	t.statusItem.Disable()

	systray.AddSeparator()
	t.pauseItem = systray.AddMenuItem("Pause analysis", "Stop picking up new jobs")

	systray.AddSeparator()
	quitItem := systray.AddMenuItem("Quit VibeCut", "Stop the daemon")

	go t.loop(quitItem)
	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

// loop owns every menu update, so no locking is needed around the
// items.
func (t *Tray) loop(quitItem *systray.MenuItem) {
	ticker := time.NewTicker(statusRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.pauseItem.ClickedCh:
			t.togglePause()
		case <-quitItem.ClickedCh:
			t.logger.Info("quit requested from tray")
			if t.onQuit != nil {
				t.onQuit()
			}
			systray.Quit()
			return
		case <-ticker.C:
			t.refreshStatus()
		}
	}
}

func (t *Tray) togglePause() {
	if t.runner == nil {
		return
	}
	if t.runner.IsPaused() {
		t.runner.Resume()
		t.pauseItem.SetTitle("Pause analysis")
	} else {
		t.runner.Pause()
		t.pauseItem.SetTitle("Resume analysis")
	}
	t.refreshStatus()
}

func (t *Tray) refreshStatus() {
	if t.runner == nil {
		return
	}
	switch {
	case t.runner.IsPaused():
		t.statusItem.SetTitle("Status: paused")
	case t.runner.ActiveJobs() > 0:
		t.statusItem.SetTitle(fmt.Sprintf("Status: analyzing (%d jobs)", t.runner.ActiveJobs()))
	default:
		t.statusItem.SetTitle("Status: idle")
	}
}
