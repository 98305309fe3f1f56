package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/danmuck/sockwrap/internal/logging"
	"github.com/danmuck/sockwrap/internal/observability"
	"github.com/danmuck/sockwrap/internal/wire"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	address   string
	port      int
	attempts  int
	transport string
	logLevel  string
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "sockwrapctl: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:           "sockwrapctl",
		Short:         "Talk to a sockwrapd producer or another sockwrapctl",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&g.address, "address", "a", "127.0.0.1", "peer address")
	cmd.PersistentFlags().IntVarP(&g.port, "port", "p", 8485, "peer port")
	cmd.PersistentFlags().IntVar(&g.attempts, "attempts", 5, "connect attempts, 0 retries forever")
	cmd.PersistentFlags().StringVar(&g.transport, "transport", "tcp", "tcp or rfcomm read strategy")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "debug, info, warn or error")

	cmd.AddCommand(streamCmd(g), logCmd(g), sendCmd(g), recvCmd(g))
	return cmd
}

// setup installs the process logger and builds the wire config for g.
func (g *globalFlags) setup() (wire.Config, error) {
	logging.ConfigureRuntime()
	if g.logLevel != "" && !logging.SetLevel(g.logLevel) {
		return wire.Config{}, fmt.Errorf("unknown log level %q", g.logLevel)
	}
	logger := observability.InitLogger("sockwrapctl")
	cfg := wire.DefaultConfig()
	cfg.Observer = logging.NewZerolog(logger)
	switch strings.ToLower(g.transport) {
	case "tcp":
		cfg.Transport = wire.TransportTCP
	case "rfcomm":
		cfg.Transport = wire.TransportRFCOMM
	default:
		return wire.Config{}, fmt.Errorf("unknown transport %q", g.transport)
	}
	return cfg, nil
}

func (g *globalFlags) dial(ctx context.Context, cfg wire.Config) (*wire.Conn, error) {
	conn, err := wire.DialWithBackoff(ctx, g.address, g.port, cfg, g.attempts)
	if err != nil {
		return nil, err
	}
	log.Info().Str("peer", conn.Identity()).Str("id", conn.ID()).Msg("connected")
	return conn, nil
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}
