package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/example/court-autobook/internal/poller"
)

func newStatusCmd() *cobra.Command {
	var (
		watch    bool
		interval time.Duration
	)

	c := &cobra.Command{
		Use:   "status <guid>",
		Short: "Query a reservation's status once, or poll it with --watch",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			rn := a.runner(nil)
			if watch {
				st := watchStatus(ctx, rn.StatusSource(), args[0], interval, cmd.ErrOrStderr())
				return printJSON(cmd.OutOrStdout(), st)
			}
			doc, err := rn.Status(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), doc)
		}),
	}

	c.Flags().BoolVar(&watch, "watch", false, "poll until the status is no longer pending")
	c.Flags().DurationVar(&interval, "interval", poller.DefaultInterval, "pause between status queries")
	return c
}
