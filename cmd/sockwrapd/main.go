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

	"github.com/danmuck/sockwrap/internal/logging"
	"github.com/danmuck/sockwrap/internal/observability"
	"github.com/danmuck/sockwrap/internal/stream"
	"github.com/danmuck/sockwrap/internal/wire"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "sockwrapd: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		listen     string
		port       int
		metrics    string
	)

	cmd := &cobra.Command{
		Use:           "sockwrapd",
		Short:         "Serve a synthetic camera over the framed socket protocol",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := defaultDaemonConfig()
			if configPath != "" {
				loaded, err := loadDaemonConfig(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if cmd.Flags().Changed("listen") {
				cfg.ListenAddress = listen
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if cmd.Flags().Changed("metrics") {
				cfg.MetricsAddr = metrics
			}
			if err := cfg.validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a TOML config file")
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides config)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides config)")
	cmd.Flags().StringVar(&metrics, "metrics", "", "metrics listen address, empty disables")
	cmd.AddCommand(versionCmd(), configCmd())
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}

func run(ctx context.Context, cfg daemonConfig) error {
	logging.ConfigureRuntime()
	levelOK := cfg.LogLevel == "" || logging.SetLevel(cfg.LogLevel)
	logger := observability.InitLogger("sockwrapd")
	if !levelOK {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("ignoring unknown log level")
	}
	obs := logging.NewZerolog(logger)
	cfg.Wire.Observer = obs
	observability.RegisterMetrics()

	if cfg.MetricsAddr != "" {
		metricsSrv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsRouter(time.Now()),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics listening")
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	ln, err := wire.Bind(cfg.ListenAddress, cfg.Port, cfg.Wire)
	if err != nil {
		return err
	}
	if err := ln.Listen(cfg.Backlog); err != nil {
		return err
	}
	log.Info().
		Str("addr", ln.Addr().String()).
		Str("transport", cfg.Wire.Transport.Name).
		Int("width", cfg.Width).
		Int("height", cfg.Height).
		Msg("sockwrapd listening")

	src := stream.NewPatternSource(cfg.Width, cfg.Height)
	logText := cfg.LogText
	producer := stream.NewProducer(src,
		stream.WithProducerObserver(obs),
		stream.WithLogText(func() string { return logText }),
	)
	srv := stream.NewServer(ln, producer, obs)
	if err := srv.Serve(ctx); err != nil {
		return err
	}
	log.Info().Msg("sockwrapd stopped")
	return nil
}

// metricsRouter serves the daemon's scrape and health endpoints.
func metricsRouter(started time.Time) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware("sockwrapd"))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(started).String(),
			"service": "sockwrapd",
			"version": version,
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}
