package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Run history (needs DATABASE_URL)",
	}

	var (
		limit  int
		asJSON bool
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			repo, _, err := a.openHistory(ctx)
			if err != nil {
				return err
			}
			if repo == nil {
				return errors.New("DATABASE_URL is not set")
			}
			runs, err := repo.Recent(ctx, limit)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), runs)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tTRIGGER\tDATE\tWINDOW\tBOOKED\tSLOT\tERROR")
			for _, r := range runs {
				slot := "-"
				if r.SlotStart != nil && r.InventoryID != nil {
					slot = *r.InventoryID + "@" + *r.SlotStart
				}
				errText := ""
				if r.Error != nil {
					errText = *r.Error
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s-%s\t%v\t%s\t%s\n",
					r.StartedAt.Local().Format(time.DateTime), r.Trigger, r.Date, r.WindowStart, r.WindowEnd, r.Booked, slot, errText)
			}
			return tw.Flush()
		}),
	}
	list.Flags().IntVar(&limit, "limit", 20, "number of runs")
	list.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.AddCommand(list)
	return cmd
}
