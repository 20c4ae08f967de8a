package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vidtriage/vidtriage/internal/api"
	"github.com/vidtriage/vidtriage/internal/catalog"
	"github.com/vidtriage/vidtriage/internal/config"
	"github.com/vidtriage/vidtriage/internal/extractor"
	"github.com/vidtriage/vidtriage/internal/ledger"
	"github.com/vidtriage/vidtriage/internal/logging"
	"github.com/vidtriage/vidtriage/internal/playback"
	"github.com/vidtriage/vidtriage/internal/segment"
	"github.com/vidtriage/vidtriage/internal/session"
	"github.com/vidtriage/vidtriage/internal/ui"
	"github.com/vidtriage/vidtriage/internal/watcher"
)

func main() {
	var flags config.Overrides

	root := &cobra.Command{
		Use:   "vidtriage [root]",
		Short: "Review videos in a directory and label them pass, fail, or uncertain",
		Long: `vidtriage scans a directory tree for videos, then serves a local review
UI where each video is labeled Pass, Fail (with a clip of the failing
segment), or Uncertain. Labels land in an append-only CSV ledger, so an
interrupted session resumes where it left off.`,
		Version: config.Version,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				flags.Root = args[0]
			}
			return run(flags)
		},
		SilenceUsage: true,
	}

	root.Flags().StringVar(&flags.Root, "root", "", "video directory to review (or pass as the first argument)")
	root.Flags().StringVar(&flags.Ledger, "ledger", "", "ledger CSV path (default <root>/labels.csv)")
	root.Flags().IntVar(&flags.Port, "port", 0, fmt.Sprintf("HTTP port for the review UI (default %d)", config.DefaultPort))
	root.Flags().BoolVar(&flags.Headless, "headless", false, "run without the system tray")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(flags config.Overrides) error {
	startTime := time.Now()

	cfg, err := config.New(flags)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.RootDir() == "" {
		return fmt.Errorf("no video root given; pass a directory or set %s", config.EnvRoot)
	}
	if info, err := os.Stat(cfg.RootDir()); err != nil || !info.IsDir() {
		return fmt.Errorf("video root %s is not a directory", cfg.RootDir())
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting vidtriage",
		"version", config.Version,
		"root", cfg.RootDir(),
		"ledger", cfg.LedgerPath(),
	)

	led, err := ledger.Open(cfg.LedgerPath(), logging.WithComponent(logger, "ledger"))
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}

	scanner := catalog.NewScanner(config.FailuresDirName, cfg.Extensions(),
		logging.WithComponent(logger, "scanner"))

	cutter := extractor.New(extractor.Config{
		FFmpegPath:      cfg.FFmpegPath(),
		FFprobePath:     cfg.FFprobePath(),
		CopyTimeout:     cfg.CopyTimeout(),
		ReencodeTimeout: cfg.ReencodeTimeout(),
		Logger:          logging.WithComponent(logger, "extractor"),
	})
	if !cutter.Available() {
		logger.Warn("ffmpeg not found; Fail labeling will be rejected until it is installed")
	}

	machine := segment.NewMachine(cutter, led, cfg.FailuresDir(),
		logging.WithComponent(logger, "segment"))

	ctrl := session.NewController(session.Config{
		Root:    cfg.RootDir(),
		Scanner: scanner,
		Ledger:  led,
		Machine: machine,
		Logger:  logging.WithComponent(logger, "session"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The queue must be materialized before the API exposes any session
	// state, so the scan completes before the server starts.
	if err := ctrl.Start(ctx); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	if ctrl.Done() {
		stats := ctrl.Stats()
		logger.Info("nothing to review",
			"catalog", ctrl.CatalogSize(),
			"labeled", stats.Total,
		)
	}

	w := watcher.New(scanner, config.FailuresDirName, logging.WithComponent(logger, "watcher"))
	w.OnArrival(ctrl.NoteArrival)
	go func() {
		if err := w.Watch(ctx, cfg.RootDir()); err != nil && ctx.Err() == nil {
			logger.Warn("watcher stopped", "error", err)
		}
	}()

	apiServer := api.NewServer(api.ServerConfig{
		Port:      cfg.Port(),
		AuthToken: cfg.AuthToken(),
		Root:      cfg.RootDir(),
		Session:   ctrl,
		Ledger:    led,
		Streamer:  playback.NewStreamer(cfg.RootDir(), logging.WithComponent(logger, "playback")),
		Prober:    cutter,
		Logger:    logging.WithComponent(logger, "api"),
		StartTime: startTime,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	url := "http://" + apiServer.Addr()
	fmt.Fprintf(os.Stderr, "\nReview UI: %s\n\n", url)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			close(quitCh)
		case <-quitCh:
		}
	}()

	if cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
		<-quitCh
	} else {
		tray := ui.NewTray(ui.TrayConfig{
			URL:    url,
			Logger: logging.WithComponent(logger, "tray"),
			OnQuit: func() {
				close(quitCh)
			},
		})

		go func() {
			ticker := time.NewTicker(2 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-quitCh:
					tray.Quit()
					return
				case <-ticker.C:
					index, pending := ctrl.Position()
					tray.UpdateSession(ui.SessionInfo{
						Index:   index,
						Pending: pending,
						Done:    ctrl.Done(),
						Stats:   ctrl.Stats(),
					})
				}
			}
		}()

		// systray must own the main goroutine on some platforms.
		tray.Run()
	}

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	stats := ctrl.Stats()
	logger.Info("shutdown complete",
		"labeled", stats.Total,
		"passed", stats.Passed,
		"failed", stats.Failed,
		"uncertain", stats.Uncertain,
	)
	return nil
}
