// Command registryd runs the agent registry service: agents register
// their cards over HTTP, callers discover them by capability, skill or
// tag, and a background loop keeps per-agent health results current.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/agrimesh/agentmesh/core"
	"github.com/agrimesh/agentmesh/registry"
	"github.com/agrimesh/agentmesh/telemetry"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configFile     string
		port           int
		healthInterval time.Duration
		devMode        bool
	)

	cmd := &cobra.Command{
		Use:   "registryd",
		Short: "Agent registry and health-check service",
		RunE: func(cmd *cobra.Command, args []string) error {
			// .env is optional; ignore absence
			_ = godotenv.Load()

			opts := []core.Option{core.WithName("registryd")}
			if port > 0 {
				opts = append(opts, core.WithPort(port))
			}
			if healthInterval > 0 {
				opts = append(opts, core.WithHealthCheckInterval(healthInterval))
			}
			if devMode {
				opts = append(opts, core.WithLogging(core.LoggingConfig{
					Level:  "debug",
					Format: "pretty",
					Output: "stdout",
				}))
			}

			var cfg *core.Config
			var err error
			if configFile != "" {
				cfg, err = core.LoadConfigFile(configFile, opts...)
			} else {
				cfg, err = core.NewConfig(opts...)
			}
			if err != nil {
				return err
			}

			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "path to YAML config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP listen port (overrides config)")
	cmd.Flags().DurationVar(&healthInterval, "health-interval", 0, "health probe interval (overrides config)")
	cmd.Flags().BoolVar(&devMode, "dev", false, "pretty debug logging for local development")
	return cmd
}

func run(ctx context.Context, cfg *core.Config) error {
	logger := core.NewProductionLogger(cfg.Logging, cfg.Name)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry, cfg.Name)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Warn("Telemetry shutdown failed", map[string]interface{}{
				"operation": "telemetry_shutdown",
				"error":     err.Error(),
			})
		}
	}()

	reg := registry.New(registry.WithLogger(logger))
	if err := reg.StartHealthChecks(ctx, registry.HealthCheckerConfig{
		Interval: cfg.Registry.HealthCheckInterval,
		Timeout:  cfg.Registry.HealthCheckTimeout,
	}); err != nil {
		return err
	}
	defer reg.StopHealthChecks()

	server := registry.NewServer(reg, cfg, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down", map[string]interface{}{
		"operation": "shutdown",
	})
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
