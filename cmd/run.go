package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/court-autobook/internal/booking"
	"github.com/example/court-autobook/internal/domain/reservation"
	"github.com/example/court-autobook/internal/poller"
)

func newRunCmd() *cobra.Command {
	var (
		date        string
		durations   string
		windowStart string
		windowEnd   string
		watch       bool
	)

	c := &cobra.Command{
		Use:   "run",
		Short: "Run one booking attempt: search each duration and book the first slot in the window",
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			ds, err := parseDurations(durations)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			repo, _, err := a.openHistory(ctx)
			if err != nil {
				return err
			}
			rn := a.runner(repo)
			sum := rn.Run(ctx, "cli", booking.RunRequest{
				Date:      date,
				Durations: ds,
				Window:    reservation.BookingWindow{Start: windowStart, End: windowEnd},
			})
			if err := printJSON(cmd.OutOrStdout(), sum); err != nil {
				return err
			}
			if sum.Error != "" {
				return fmt.Errorf("run failed: %s", sum.Error)
			}
			if watch && sum.Result.Booked && sum.Result.Outcome != nil && sum.Result.Outcome.Reference != "" {
				st := watchStatus(ctx, rn.StatusSource(), sum.Result.Outcome.Reference, poller.DefaultInterval, cmd.ErrOrStderr())
				return printJSON(cmd.OutOrStdout(), st)
			}
			return nil
		}),
	}

	c.Flags().StringVar(&date, "date", "", "date to book, YYYY-MM-DD (default today)")
	c.Flags().StringVar(&durations, "durations", "90", "comma-separated durations in minutes, tried in order")
	c.Flags().StringVar(&windowStart, "window-start", reservation.DefaultWindowStart, "earliest start, HH:MM")
	c.Flags().StringVar(&windowEnd, "window-end", reservation.DefaultWindowEnd, "latest end, HH:MM")
	c.Flags().BoolVar(&watch, "watch", false, "poll the new reservation's status until it is no longer pending")
	return c
}

func parseDurations(s string) ([]int, error) {
	var out []int
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid duration %q", p)
		}
		out = append(out, n)
	}
	return out, nil
}

// watchStatus polls guid until it leaves pending or ctx ends, reporting each
// query on w.
func watchStatus(ctx context.Context, src poller.StatusSource, guid string, every time.Duration, w io.Writer) reservation.PollState {
	p := &poller.Poller{
		Source:   src,
		Interval: every,
		OnUpdate: func(st reservation.PollState) {
			fmt.Fprintf(w, "%s  %s  %s\n", st.Updated.Format("15:04:05"), st.LastStatus, firstNonEmpty(st.Status, st.Error))
		},
	}
	h := p.Start(ctx, guid)
	<-h.Done()
	return h.State()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
