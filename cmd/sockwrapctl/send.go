package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/danmuck/sockwrap/internal/protocol/value"
	"github.com/spf13/cobra"
)

func sendCmd(g *globalFlags) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "send [values...]",
		Short: "Send values to a peer running recv",
		Args:  cobra.MinimumNArgs(1),
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

			for _, arg := range args {
				v, cleanup, err := parseArg(kind, arg)
				if err != nil {
					return err
				}
				err = conn.Send(v)
				cleanup()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "sent %s\n", describe(v))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&kind, "kind", "k", "auto", "auto, string, int, float, file or list")
	return cmd
}

// parseArg turns a command-line argument into a value. cleanup releases any
// file the value holds.
func parseArg(kind, arg string) (value.Value, func(), error) {
	noop := func() {}
	switch kind {
	case "string":
		return value.String(arg), noop, nil
	case "int":
		n, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, noop, fmt.Errorf("parse int %q: %w", arg, err)
		}
		return value.Int(n), noop, nil
	case "float":
		f, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return nil, noop, fmt.Errorf("parse float %q: %w", arg, err)
		}
		return value.Float(f), noop, nil
	case "file":
		f, err := value.OpenFile(arg)
		if err != nil {
			return nil, noop, err
		}
		return f, func() { _ = f.Close() }, nil
	case "list":
		var seq value.Sequence
		for _, part := range strings.Split(arg, ",") {
			v, _, err := parseArg("auto", strings.TrimSpace(part))
			if err != nil {
				return nil, noop, err
			}
			seq = append(seq, v)
		}
		return seq, noop, nil
	case "auto":
		if n, err := strconv.ParseInt(arg, 10, 64); err == nil {
			return value.Int(n), noop, nil
		}
		if f, err := strconv.ParseFloat(arg, 64); err == nil {
			return value.Float(f), noop, nil
		}
		return value.String(arg), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown kind %q", kind)
	}
}

func describe(v value.Value) string {
	switch x := v.(type) {
	case value.String:
		if len(x) > 64 {
			return fmt.Sprintf("string(len=%d)", len(x))
		}
		return strconv.Quote(string(x))
	case value.Array:
		return fmt.Sprintf("array(shape=%v kind=%s)", x.Shape, x.Kind)
	case *value.File:
		return fmt.Sprintf("file(name=%s size=%d)", x.Name, x.Size)
	case value.Received:
		return fmt.Sprintf("file(path=%s size=%d)", x.Path, x.Size)
	case value.Sequence:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = describe(e)
		}
		return "(" + strings.Join(parts, ", ") + ")"
	default:
		return fmt.Sprintf("%v", v)
	}
}
