package main

import (
	"errors"
	"fmt"

	"github.com/danmuck/sockwrap/internal/protocol"
	"github.com/danmuck/sockwrap/internal/stream"
	"github.com/danmuck/sockwrap/internal/wire"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func recvCmd(g *globalFlags) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "recv",
		Short: "Accept one peer and print every value it sends",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.setup()
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd)
			defer stop()

			ln, err := wire.Bind(g.address, g.port, cfg)
			if err != nil {
				return err
			}
			if err := ln.Listen(1); err != nil {
				return err
			}
			defer ln.Close()
			go func() {
				<-ctx.Done()
				_ = ln.Close()
			}()
			log.Info().Str("addr", ln.Addr().String()).Msg("waiting for peer")

			conn, addr, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			defer conn.Close()
			go func() {
				<-ctx.Done()
				_ = conn.Close()
			}()
			log.Info().Str("peer", addr.String()).Msg("peer connected")

			for {
				v, err := conn.Receive(wire.WithDir(dir), wire.WithEnumType(stream.Commands))
				if err != nil {
					if errors.Is(err, protocol.ErrConnectionLost) {
						log.Info().Str("peer", addr.String()).Msg("peer closed")
						return nil
					}
					if protocol.Fatal(err) {
						return err
					}
					log.Warn().Err(err).Msg("receive")
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "received %s\n", describe(v))
			}
		},
	}
	cmd.Flags().StringVar(&dir, "dir", ".", "directory for received files")
	return cmd
}
