// Package ui provides the system tray entry point for the review agent.
package ui

import (
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"sync"

	"github.com/getlantern/systray"

	"github.com/vidtriage/vidtriage/internal/ledger"
)

// SessionInfo is the slice of session state the tray displays.
type SessionInfo struct {
	Index   int
	Pending int
	Done    bool
	Stats   ledger.Stats
}

type Tray struct {
	url    string
	logger *slog.Logger

	progressItem *systray.MenuItem
	statsItem    *systray.MenuItem

	mu sync.Mutex

	onQuit func()
}

type TrayConfig struct {
	URL    string // browser UI address, e.g. http://127.0.0.1:8790
	Logger *slog.Logger
	OnQuit func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		url:    cfg.URL,
		logger: cfg.Logger,
		onQuit: cfg.OnQuit,
	}
}

// Run blocks on the tray event loop. It must run on the main goroutine on
// platforms that require it.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetTitle("vidtriage")
	systray.SetTooltip("Video review session")

	t.progressItem = systray.AddMenuItem("Video 0 / 0", "Review progress")
	t.progressItem.Disable()

	t.statsItem = systray.AddMenuItem("No labels yet", "Label counts")
	t.statsItem.Disable()

	systray.AddSeparator()

	openItem := systray.AddMenuItem("Open Reviewer", "Open the review UI in a browser")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Stop the review session")

	go func() {
		for {
			select {
			case <-openItem.ClickedCh:
				t.openBrowser()
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

	t.openBrowser()
	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

// UpdateSession refreshes the progress and stats menu entries.
func (t *Tray) UpdateSession(info SessionInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.progressItem == nil {
		return
	}
	if info.Done {
		t.progressItem.SetTitle("All videos reviewed")
	} else {
		t.progressItem.SetTitle(fmt.Sprintf("Video %d / %d", info.Index+1, info.Pending))
	}
	t.statsItem.SetTitle(fmt.Sprintf("Pass %d · Fail %d · Uncertain %d",
		info.Stats.Passed, info.Stats.Failed, info.Stats.Uncertain))
}

func (t *Tray) openBrowser() {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", t.url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", t.url)
	default:
		cmd = exec.Command("xdg-open", t.url)
	}
	if err := cmd.Start(); err != nil {
		t.logger.Warn("failed to open browser", "url", t.url, "error", err)
	}
}

func (t *Tray) Quit() {
	systray.Quit()
}
