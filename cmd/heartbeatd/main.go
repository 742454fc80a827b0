package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vyvo/heartbeat/pkg/config"
	"github.com/vyvo/heartbeat/pkg/heartbeat"
	"github.com/vyvo/heartbeat/pkg/registry"
	"github.com/vyvo/heartbeat/pkg/telemetry"
)

type rootOptions struct {
	configDir string
}

type beatOptions struct {
	url      string
	name     string
	interval time.Duration
	once     bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := rootOptions{configDir: config.DefaultDir}

	root := &cobra.Command{
		Use:           "heartbeatd",
		Short:         "Track the last heartbeat received from each named client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.configDir, "config-dir", opts.configDir, "directory holding an optional config file")

	root.AddCommand(
		newServeCmd(&opts),
		newBeatCmd(),
	)

	return root
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Accept heartbeats and report clients that go silent",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadHeartbeat(opts.configDir)
			if err != nil {
				return err
			}

			logger, err := telemetry.NewLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()

			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg config.HeartbeatConfig, logger *zap.Logger) error {
	if cfg.TracingEnabled {
		shutdown := telemetry.InitTracer(ctx, cfg.ServiceName, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("tracer shutdown error", zap.Error(err))
			}
		}()
	}

	promRegistry := prometheus.NewRegistry()
	metrics := telemetry.NewPrometheusMetrics(promRegistry)

	if cfg.MetricsAddr != "" {
		go func() {
			if err := telemetry.ServeMetrics(ctx, cfg.MetricsAddr, promRegistry, logger); err != nil {
				logger.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	reg := registry.New()
	srv := heartbeat.New(heartbeat.Options{
		Addr:            cfg.ListenAddr,
		ShutdownTimeout: cfg.ShutdownTimeout,
		Registry:        reg,
		Logger:          logger.Named("heartbeat"),
		Metrics:         metrics,
	})

	if err := srv.Start(); err != nil {
		return fmt.Errorf("start heartbeat server: %w", err)
	}
	defer srv.Stop()

	watcher := heartbeat.NewWatcher(srv.Registry(), heartbeat.WatcherOptions{
		Threshold: cfg.SilenceThreshold,
		Interval:  cfg.SweepInterval,
		Logger:    logger.Named("watcher"),
		Metrics:   metrics,
	})

	return watcher.Run(ctx)
}

func newBeatCmd() *cobra.Command {
	beat := beatOptions{
		url:      heartbeat.DefaultURL,
		interval: 10 * time.Second,
	}

	cmd := &cobra.Command{
		Use:   "beat",
		Short: "Send heartbeats for a client name",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := telemetry.NewLogger("info")
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()

			return runBeat(ctx, heartbeat.NewClient(beat.url), beat, logger)
		},
	}

	cmd.Flags().StringVar(&beat.url, "url", beat.url, "heartbeat server base URL")
	cmd.Flags().StringVar(&beat.name, "name", "", "client name to announce")
	cmd.Flags().DurationVar(&beat.interval, "interval", beat.interval, "time between heartbeats")
	cmd.Flags().BoolVar(&beat.once, "once", false, "send a single heartbeat and exit")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func runBeat(ctx context.Context, client *heartbeat.Client, opts beatOptions, logger *zap.Logger) error {
	if !opts.once && opts.interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", opts.interval)
	}

	if err := client.Send(ctx, opts.name); err != nil {
		if opts.once {
			return err
		}
		logger.Warn("heartbeat failed", zap.String("name", opts.name), zap.Error(err))
	}
	if opts.once {
		return nil
	}

	ticker := time.NewTicker(opts.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := client.Send(ctx, opts.name); err != nil {
				logger.Warn("heartbeat failed", zap.String("name", opts.name), zap.Error(err))
			}
		}
	}
}

func signalAwareContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
