package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/njaaron/articlesearch/internal/config"
	"github.com/njaaron/articlesearch/internal/netwatch"
	"github.com/njaaron/articlesearch/internal/tui"
	"github.com/spf13/cobra"
)

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Logs go to a file so they don't corrupt the screen.
	logPath := config.LogPath()
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("creating log dir: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer logFile.Close()
	setupLogging(logFile, cfg.LogLevel)

	d, err := buildDeps(cfg, config.CachePath(), config.SettingsPath())
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	go func() {
		if err := d.gate.Watch(ctx); err != nil {
			slog.Warn("settings watch stopped", "error", err)
		}
	}()

	probe := netwatch.DialProbe(cfg.ProbeTarget(), cfg.ProbeTimeout())
	events := netwatch.NewMonitor(probe, cfg.ProbeDuration()).Run(ctx)

	err = tui.Run(tui.RunOpts{
		Store:          d.db,
		Syncer:         d.controller,
		Pref:           d.gate,
		Events:         events,
		RefreshOnStart: flagRefresh || d.db.NeedsRefresh(cfg.RefreshDuration()),
	})
	d.controller.Shutdown()
	return err
}
