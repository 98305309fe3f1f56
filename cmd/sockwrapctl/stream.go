package main

import (
	"context"
	"time"

	"github.com/danmuck/sockwrap/internal/protocol/value"
	"github.com/danmuck/sockwrap/internal/stream"
	"github.com/danmuck/sockwrap/internal/wire"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func streamCmd(g *globalFlags) *cobra.Command {
	var (
		width    int
		height   int
		interval time.Duration
		duration time.Duration
	)
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Poll frames from a producer and report them",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.setup()
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}
			return runStream(ctx, g, cfg, width, height, interval)
		},
	}
	cmd.Flags().IntVar(&width, "width", 0, "requested frame width, 0 keeps the producer default")
	cmd.Flags().IntVar(&height, "height", 0, "requested frame height")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "report interval")
	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long, 0 runs until interrupted")
	return cmd
}

func runStream(ctx context.Context, g *globalFlags, cfg wire.Config, width, height int, interval time.Duration) error {
	conn, err := g.dial(ctx, cfg)
	if err != nil {
		return err
	}
	client := stream.NewClient(conn, stream.WithObserver(cfg.Observer))
	defer client.Close()

	begin := func() error {
		if err := client.Start(); err != nil {
			return err
		}
		if width > 0 && height > 0 {
			return client.Resize(width, height)
		}
		return nil
	}
	if err := begin(); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			client.Stop()
			log.Info().Msg("stream stopped")
			return nil
		case <-ticker.C:
		}

		if client.State() == stream.StateFaulted {
			log.Warn().Err(client.Err()).Msg("stream faulted, reconnecting")
			conn, err := g.dial(ctx, cfg)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			client.Reset(conn)
			if err := client.Start(); err != nil {
				return err
			}
			continue
		}
		reportFrame(client.Read())
	}
}

func reportFrame(frame value.Array) {
	vals := frame.Float64s()
	mean := 0.0
	for _, v := range vals {
		mean += v
	}
	if len(vals) > 0 {
		mean /= float64(len(vals))
	}
	log.Info().
		Ints("shape", frame.Shape).
		Str("kind", frame.Kind.String()).
		Float64("mean", mean).
		Msg("frame")
}
