package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dragonsize/TDTUmes/p2p"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewRelayCLI creates the root Cobra command with the serve and connect subcommands.
func NewRelayCLI() *cobra.Command {
	var (
		envFile string
		flagCfg = defaultConfig()
	)

	var rootCmd = &cobra.Command{
		Use:          "tdtumes",
		Short:        "TDTUmes TCP message relay",
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&envFile, "env-file", "", "Optional dotenv file with RELAY_* settings")
	pf.StringVar(&flagCfg.Host, "host", defaultHost, "Host to listen on or connect to")
	pf.IntVarP(&flagCfg.Port, "port", "p", defaultPort, "Port to listen on or connect to")
	pf.IntVar(&flagCfg.ChunkSize, "chunk-size", p2p.DefaultChunkSize, "Maximum bytes read per chunk")
	pf.DurationVar(&flagCfg.WriteTimeout, "write-timeout", 0, "Per-send write deadline (0 disables)")
	pf.StringVar(&flagCfg.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	pf.StringVar(&flagCfg.LogFormat, "log-format", "text", "Log format: text or json")

	// Flags the user set explicitly win over the env file and environment.
	resolveConfig := func(cmd *cobra.Command) (*RelayConfig, error) {
		cfg, err := loadConfig(envFile)
		if err != nil {
			return nil, err
		}

		flags := cmd.Flags()
		if flags.Changed("host") {
			cfg.Host = flagCfg.Host
		}
		if flags.Changed("port") {
			cfg.Port = flagCfg.Port
		}
		if flags.Changed("chunk-size") {
			cfg.ChunkSize = flagCfg.ChunkSize
		}
		if flags.Changed("write-timeout") {
			cfg.WriteTimeout = flagCfg.WriteTimeout
		}
		if flags.Changed("log-level") {
			cfg.LogLevel = flagCfg.LogLevel
		}
		if flags.Changed("log-format") {
			cfg.LogFormat = flagCfg.LogFormat
		}
		if flags.Changed("metrics-addr") {
			cfg.MetricsAddr = flagCfg.MetricsAddr
		}

		if err := cfg.validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	// serve Command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay server until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			initLogger(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())

			return serve(cmd.Context(), cfg)
		},
	}
	serveCmd.Flags().StringVar(&flagCfg.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")

	// connect Command
	var username string
	connectCmd := &cobra.Command{
		Use:   "connect",
		Short: "Join the relay as an interactive client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			initLogger(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())

			return runClient(cfg, username, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	connectCmd.Flags().StringVarP(&username, "username", "u", "", "Name shown to other clients (prompted when empty)")

	rootCmd.AddCommand(serveCmd, connectCmd)

	return rootCmd
}

// serve runs the relay, and the metrics endpoint when configured, until ctx
// is cancelled or the process receives SIGINT/SIGTERM.
func serve(ctx context.Context, cfg *RelayConfig) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := makeServer(cfg)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(ctx)
	})

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			slog.Info("Metrics endpoint listening", "addr", cfg.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}
