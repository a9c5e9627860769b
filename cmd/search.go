package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/court-autobook/internal/booking"
	"github.com/example/court-autobook/internal/domain/reservation"
)

func newSearchCmd() *cobra.Command {
	var (
		date        string
		duration    int
		windowStart string
		windowEnd   string
		raw         bool
	)

	c := &cobra.Command{
		Use:   "search",
		Short: "Search availability once and list the slots found and those inside the window",
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			if date == "" {
				date = time.Now().Format("2006-01-02")
			}
			win := reservation.BookingWindow{Start: windowStart, End: windowEnd}.WithDefaults()
			if err := win.Validate(); err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			res, err := a.runner(nil).Search(ctx, reservation.SearchQuery{Date: date, DurationMinutes: duration}, win)
			if err != nil {
				return err
			}
			if raw {
				return printJSON(cmd.OutOrStdout(), res.Raw)
			}

			matched := make(map[string]bool, len(res.Matched))
			for _, s := range res.Matched {
				matched[s.InventoryID+"|"+s.Start] = true
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "INVENTORY\tSTART\tDURATION\tAVAILABLE\tIN WINDOW")
			for _, s := range res.Slots {
				avail := "-"
				if s.Available != nil {
					avail = fmt.Sprint(*s.Available)
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%v\n", s.InventoryID, s.Start, s.DurationMinutes, avail, matched[s.InventoryID+"|"+s.Start])
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d slots, %d inside %s\n", len(res.Slots), len(res.Matched), win)
			if res.Tried != "" {
				fmt.Fprintf(cmd.OutOrStderr(), "answered by %s\n", res.Tried)
			}
			return nil
		}),
	}

	c.Flags().StringVar(&date, "date", "", "date to search, YYYY-MM-DD (default today)")
	c.Flags().IntVar(&duration, "duration", booking.DefaultDurations[0], "duration in minutes")
	c.Flags().StringVar(&windowStart, "window-start", reservation.DefaultWindowStart, "earliest start, HH:MM")
	c.Flags().StringVar(&windowEnd, "window-end", reservation.DefaultWindowEnd, "latest end, HH:MM")
	c.Flags().BoolVar(&raw, "raw", false, "print the raw search response instead")
	return c
}
