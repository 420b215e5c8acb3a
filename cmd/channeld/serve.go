package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"tflite-channel/config"
	"tflite-channel/middleware"
	"tflite-channel/platform"
	"tflite-channel/platforminfo"
	"tflite-channel/registry"
	"tflite-channel/server"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Host the tflite_flutter channel over TCP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := flags.load()
			if err != nil {
				return err
			}
			defer logger.Sync()
			if listen != "" {
				cfg.Server.Listen = listen
			}

			svr, closeRegistry, err := buildServer(cfg, logger)
			if err != nil {
				return err
			}
			defer closeRegistry()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runServer(ctx, svr, cfg.Server.Listen, cfg.Server.ShutdownTimeout.Duration, logger)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "override server.listen")
	return cmd
}

// runServer serves until ctx is done or Serve fails. Either way the server is
// shut down so attached plugins are detached.
func runServer(ctx context.Context, svr *server.Server, listen string, shutdownTimeout time.Duration, logger *zap.Logger) error {
	errc := make(chan error, 1)
	go func() { errc <- svr.Serve("tcp", listen) }()

	select {
	case err := <-errc:
		if shutdownErr := svr.Shutdown(shutdownTimeout); shutdownErr != nil {
			logger.Warn("shutdown after serve failure", zap.Error(shutdownErr))
		}
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	if err := svr.Shutdown(shutdownTimeout); err != nil {
		return err
	}
	return <-errc
}

// accessor honours a configured platform override, otherwise reads the host.
func accessor(cfg config.PlatformConfig) platform.Accessor {
	if cfg.Name != "" && cfg.Release != "" {
		return platform.Static{Name: cfg.Name, Release: cfg.Release}
	}
	return platform.NewHostAccessor()
}

// buildServer wires the host from cfg. The returned func releases the registry.
func buildServer(cfg *config.Config, logger *zap.Logger) (*server.Server, func(), error) {
	info := accessor(cfg.Platform)
	opts := []server.Option{server.WithLogger(logger)}
	closeRegistry := func() {}

	if len(cfg.Registry.Endpoints) > 0 {
		reg, err := registry.NewEtcdRegistry(cfg.Registry.Endpoints, cfg.Registry.Prefix, logger)
		if err != nil {
			return nil, nil, err
		}
		closeRegistry = func() { reg.Close() }

		instance := registry.ServiceInstance{
			Addr:    cfg.AdvertiseAddr(),
			Weight:  cfg.Registry.Weight,
			Version: version,
		}
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Limits.Timeout.Duration)
		if pi, err := info.PlatformInfo(ctx); err == nil {
			instance.Platform = pi.String()
		}
		cancel()
		opts = append(opts, server.WithRegistry(reg, instance, cfg.Registry.TTL))
	}

	svr := server.NewServer(opts...)
	svr.Use(middleware.LoggingMiddleware(logger))
	if cfg.Limits.RateLimit > 0 {
		svr.Use(middleware.RateLimitMiddleware(cfg.Limits.RateLimit, cfg.Limits.Burst))
	}
	if cfg.Limits.Timeout.Duration > 0 {
		svr.Use(middleware.TimeOutMiddleware(cfg.Limits.Timeout.Duration))
	}
	// Innermost: the timeout middleware runs the handler on its own goroutine.
	svr.Use(middleware.RecoverMiddleware(logger))

	if err := svr.AddPlugin(platforminfo.New(info)); err != nil {
		closeRegistry()
		return nil, nil, fmt.Errorf("attach plugin: %w", err)
	}
	return svr, closeRegistry, nil
}
