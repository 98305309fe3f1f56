package main

import (
	"fmt"

	"github.com/danmuck/sockwrap/internal/stream"
	"github.com/spf13/cobra"
)

func logCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "log",
		Short: "Ask a producer for its log text",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.setup()
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd)
			defer stop()
			conn, err := g.dial(ctx, cfg)
			if err != nil {
				return err
			}
			defer conn.Close()

			reply, err := conn.SendThenReceive(stream.SendLog)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), describe(reply))
			return nil
		},
	}
}
