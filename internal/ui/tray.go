// Package ui is the system tray menu of the desktop studio.
package ui

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/getlantern/systray"

	"github.com/tourneyreel/studio/internal/jobs"
	"github.com/tourneyreel/studio/internal/logging"
)

//go:embed icon.png
var iconBytes []byte

const statusRefresh = 2 * time.Second

// ExportQueue is the part of the export runner the tray shows and controls.
type ExportQueue interface {
	Pause()
	Resume()
	IsPaused() bool
	ActiveJob() string
	PendingCount(ctx context.Context) int
}

var _ ExportQueue = (*jobs.Runner)(nil)

type Tray struct {
	queue  ExportQueue
	logger *slog.Logger

	statusItem *systray.MenuItem
	queueItem  *systray.MenuItem
	pauseItem  *systray.MenuItem

	mu sync.Mutex

	onOpenStudio func()
	onQuit       func()
	done         chan struct{}
}

type TrayConfig struct {
	Queue        ExportQueue
	Logger       *slog.Logger
	OnOpenStudio func()
	OnQuit       func()
}

func NewTray(cfg TrayConfig) *Tray {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Tray{
		queue:        cfg.Queue,
		logger:       logging.WithComponent(logger, "tray"),
		onOpenStudio: cfg.OnOpenStudio,
		onQuit:       cfg.OnQuit,
		done:         make(chan struct{}),
	}
}

// Run blocks on the platform event loop until Quit.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("Tourney Reel")
	systray.SetTooltip("Tourney Reel Studio")

	t.statusItem = systray.AddMenuItem("Status: Idle", "Export status")
	t.statusItem.Disable()

	t.queueItem = systray.AddMenuItem("Queued exports: 0", "Exports waiting to render")
	t.queueItem.Disable()

	systray.AddSeparator()

	t.pauseItem = systray.AddMenuItem("Pause exports", "Stop picking up queued exports")

	openItem := systray.AddMenuItem("Open Studio", "Open the editor in the browser")
	if t.onOpenStudio == nil {
		openItem.Hide()
	}

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit Tourney Reel Studio")

	go t.refreshLoop()

	go func() {
		for {
			select {
			case <-t.pauseItem.ClickedCh:
				t.togglePause()
			case <-openItem.ClickedCh:
				if t.onOpenStudio != nil {
					t.onOpenStudio()
				}
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	close(t.done)
	t.logger.Info("system tray exiting")
}

func (t *Tray) refreshLoop() {
	ticker := time.NewTicker(statusRefresh)
	defer ticker.Stop()

	t.refresh()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.refresh()
		}
	}
}

func (t *Tray) refresh() {
	if t.queue == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	pending := t.queue.PendingCount(ctx)
	cancel()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.statusItem.SetTitle("Status: " + StatusText(t.queue.IsPaused(), t.queue.ActiveJob()))
	t.queueItem.SetTitle(fmt.Sprintf("Queued exports: %d", pending))
}

func (t *Tray) togglePause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.queue == nil {
		return
	}

	if t.queue.IsPaused() {
		t.queue.Resume()
		t.pauseItem.SetTitle("Pause exports")
	} else {
		t.queue.Pause()
		t.pauseItem.SetTitle("Resume exports")
	}
	t.statusItem.SetTitle("Status: " + StatusText(t.queue.IsPaused(), t.queue.ActiveJob()))
}

// StatusText is the tray's one-word summary of the export runner. A job
// that is already rendering keeps going after a pause.
func StatusText(paused bool, activeJob string) string {
	switch {
	case activeJob != "" && paused:
		return "Exporting (pausing)"
	case activeJob != "":
		return "Exporting"
	case paused:
		return "Paused"
	default:
		return "Idle"
	}
}

func (t *Tray) Quit() {
	systray.Quit()
}
