package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/njaaron/articlesearch/internal/config"
	"github.com/njaaron/articlesearch/internal/metrics"
	"github.com/njaaron/articlesearch/internal/netwatch"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

var (
	flagMetricsAddr  string
	flagWatchRefresh bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the cache fresh in the background",
	Long: `Run headless: refresh on a schedule and whenever connectivity comes back.

The refresh interval comes from refresh_interval in the config file. With
--metrics-addr, Prometheus metrics are served on /metrics.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	watchCmd.Flags().BoolVar(&flagWatchRefresh, "refresh", false, "refresh immediately on start")
}

// scheduleRefresh registers a refresh every interval. The caller starts and
// stops the returned cron.
func scheduleRefresh(interval time.Duration, r netwatch.Refresher) (*cron.Cron, error) {
	c := cron.New()
	spec := "@every " + interval.String()
	if _, err := c.AddFunc(spec, func() {
		if !r.Refresh() {
			slog.Info("scheduled refresh skipped, sync in flight")
		}
	}); err != nil {
		return nil, fmt.Errorf("scheduling refresh %q: %w", spec, err)
	}
	slog.Info("refresh scheduled", "every", interval.String())
	return c, nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	setupLogging(os.Stderr, cfg.LogLevel)

	d, err := buildDeps(cfg, config.CachePath(), config.SettingsPath())
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := d.gate.Watch(ctx); err != nil {
			slog.Warn("settings watch stopped", "error", err)
		}
	}()

	rec := metrics.New()
	rec.Registry().MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	go rec.Consume(ctx, d.controller.Subscribe(ctx))

	snapshots, err := d.db.ObserveAll(ctx)
	if err != nil {
		return fmt.Errorf("observing cache: %w", err)
	}
	go func() {
		for s := range snapshots {
			slog.Info("cache snapshot", "articles", len(s))
		}
	}()

	if flagMetricsAddr != "" {
		srv := &http.Server{Addr: flagMetricsAddr, Handler: metricsMux(rec), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			slog.Info("serving metrics", "addr", flagMetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	probe := netwatch.DialProbe(cfg.ProbeTarget(), cfg.ProbeTimeout())
	events := netwatch.NewMonitor(probe, cfg.ProbeDuration()).Run(ctx)
	go netwatch.Bind(ctx, teeOnline(ctx, events, rec), d.controller, func(msg string) {
		slog.Info(msg)
	})

	sched, err := scheduleRefresh(cfg.RefreshDuration(), d.controller)
	if err != nil {
		return err
	}
	sched.Start()

	if flagWatchRefresh || d.db.NeedsRefresh(cfg.RefreshDuration()) {
		d.controller.Refresh()
	}

	<-ctx.Done()
	slog.Info("shutting down")
	<-sched.Stop().Done()
	d.controller.Shutdown()
	return nil
}

func metricsMux(rec *metrics.Recorder) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", rec.Handler())
	return mux
}

// teeOnline mirrors connectivity into the online gauge before passing events on.
func teeOnline(ctx context.Context, in <-chan netwatch.Event, rec *metrics.Recorder) <-chan netwatch.Event {
	out := make(chan netwatch.Event)
	go func() {
		defer close(out)
		for ev := range in {
			rec.SetOnline(ev.Connected)
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
