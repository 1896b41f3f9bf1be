package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/deusflow/newsbrief/internal/app"
	"github.com/deusflow/newsbrief/internal/config"
	"github.com/deusflow/newsbrief/internal/logger"
	"github.com/deusflow/newsbrief/internal/scheduler"
	"github.com/deusflow/newsbrief/internal/server"
)

const shutdownTimeout = 15 * time.Second

func serveCmd(configPath *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run briefings on a schedule and serve the HTTP API",
		Long: `Run briefings every scan_interval seconds and serve the HTTP API.

SIGHUP reloads the configuration file for later runs.

Examples:
  newsbrief serve
  newsbrief serve --config /etc/newsbrief.yaml --addr :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(*configPath, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides listen_addr)")
	return cmd
}

func serve(configPath, addr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Configure(os.Stdout, cfg.Debug)
	if addr == "" {
		addr = cfg.ListenAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	pipeline, err := app.NewPipeline(ctx, config.NewHolder(cfg), store, app.NewBuilder(cfg))
	if err != nil {
		store.Close()
		return fmt.Errorf("create pipeline: %w", err)
	}
	defer pipeline.Close()

	sched := scheduler.New[app.Overrides](cfg.ScanInterval(), cfg.RunOnStart, func(ctx context.Context, ov app.Overrides) {
		_, _ = pipeline.Run(ctx, ov)
	})
	sched.Start(ctx)
	defer sched.Stop()

	srv := server.New(addr, sched, pipeline.Diagnostics(), pipeline)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	logger.Info("📻 newsbrief started", "version", Version, "addr", addr, "interval", cfg.ScanInterval())

	for {
		select {
		case <-ctx.Done():
			logger.Info("🛑 Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		case <-hup:
			reload(ctx, pipeline, configPath, cfg.ScanInterval())
		}
	}
}

func reload(ctx context.Context, pipeline *app.Pipeline, configPath string, interval time.Duration) {
	next, err := config.Load(configPath)
	if err != nil {
		logger.Error("❌ Config reload failed, keeping current config", "error", err)
		return
	}
	if err := pipeline.Reload(ctx, next); err != nil {
		logger.Error("❌ Config reload failed, keeping current config", "error", err)
		return
	}
	if next.ScanInterval() != interval {
		logger.Warn("⚠️ scan_interval changes take effect after restart", "current", interval, "configured", next.ScanInterval())
	}
}
