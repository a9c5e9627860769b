package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/example/court-autobook/internal/auth"
	"github.com/example/court-autobook/internal/domain/reservation"
	"github.com/example/court-autobook/internal/migrate"
	"github.com/example/court-autobook/internal/poller"
	"github.com/example/court-autobook/internal/scheduler"
	"github.com/example/court-autobook/internal/web"
)

func newServerCmd() *cobra.Command {
	var migrateUp bool

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the control plane, the recurring scheduler and the status poller",
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			repo, d, err := a.openHistory(ctx)
			if err != nil {
				return err
			}
			if d != nil {
				if err := d.Ping(ctx); err != nil {
					return fmt.Errorf("db ping: %w", err)
				}
				if migrateUp {
					if _, err := migrate.Up(ctx, d, a.log); err != nil {
						return err
					}
				}
			} else {
				a.log.Info().Msg("DATABASE_URL not set; run history disabled")
			}

			if !a.cfg.AuthEnabled() {
				a.log.Warn().Msg("CONTROL_PASSWORD_HASH not set; control plane is unauthenticated")
			}

			rn := a.runner(repo)
			pollLog := a.log.With().Str("component", "poller").Logger()
			pl := &poller.Poller{
				Source:   rn.StatusSource(),
				Interval: poller.DefaultInterval,
				OnUpdate: func(st reservation.PollState) {
					ev := pollLog.Info()
					if st.LastStatus == reservation.PollUnknown {
						ev = pollLog.Warn().Str("error", st.Error)
					}
					ev.Str("guid", st.GUID).Str("state", string(st.LastStatus)).Str("status", st.Status).Int("queries", st.Queries).Msg("booking status")
				},
			}
			sched := scheduler.New(a.log)

			ws := &web.Server{
				Auth:        auth.NewStore(a.cfg.ControlPasswordHash, a.cfg.CookieHashKey, a.cfg.CookieBlockKey),
				Settings:    a.settings,
				Runner:      rn,
				Scheduler:   sched,
				Poller:      pl,
				Log:         a.log.With().Str("component", "http").Logger(),
				BaseContext: ctx,
			}
			if repo != nil {
				ws.History = repo
			}
			rn.OnBooked = ws.Watch

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return web.Start(gctx, a.cfg.ListenAddr, ws.Routes(), a.log)
			})
			g.Go(func() error {
				return a.settings.Watch(gctx)
			})
			g.Go(func() error {
				<-gctx.Done()
				_ = sched.Stop()
				pl.Stop()
				sched.Wait()
				return nil
			})

			err = g.Wait()
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			a.log.Info().Msg("shut down")
			return nil
		}),
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "apply database migrations on startup")
	cmd.Flags().Lookup("migrate").NoOptDefVal = "true"
	return cmd
}
