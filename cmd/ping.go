package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the configured API host resolves, accepts connections and answers HTTP",
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
			defer cancel()

			d := a.runner(nil).Diagnose(ctx)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n", d.APIBase)
			for _, p := range []struct {
				name string
				ok   bool
				err  string
				dur  time.Duration
			}{
				{"dns", d.DNS.OK, d.DNS.Error, d.DNS.Elapsed},
				{"tcp", d.TCP.OK, d.TCP.Error, d.TCP.Elapsed},
				{"http", d.HTTP.OK, d.HTTP.Error, d.HTTP.Elapsed},
			} {
				if p.ok {
					fmt.Fprintf(out, "  %-4s ok   %s\n", p.name, p.dur.Round(time.Millisecond))
				} else {
					fmt.Fprintf(out, "  %-4s FAIL %s\n", p.name, p.err)
				}
			}
			if !d.OK() {
				return errors.New("upstream unreachable")
			}
			return nil
		}),
	}
}
