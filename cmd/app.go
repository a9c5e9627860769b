package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/example/court-autobook/internal/config"
	"github.com/example/court-autobook/internal/db"
	"github.com/example/court-autobook/internal/history"
	"github.com/example/court-autobook/internal/logging"
	"github.com/example/court-autobook/internal/runner"
	"github.com/example/court-autobook/internal/secret"
)

// app is the per-command environment: process config, logger and settings.
type app struct {
	cfg      config.Config
	log      zerolog.Logger
	settings *config.Store

	closers []func()
}

func setup() (*app, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	log, closer, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, closers: []func(){func() { _ = closer.Close() }}}

	var box *secret.Box
	if len(cfg.SecretKey) > 0 {
		if box, err = secret.New(cfg.SecretKey); err != nil {
			a.close()
			return nil, err
		}
	}
	a.settings = config.NewStore(cfg.SettingsPath, box)
	a.settings.SetLogger(log.With().Str("component", "settings").Logger())
	if _, err := a.settings.Load(); err != nil {
		a.close()
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// openHistory connects to DATABASE_URL. It returns nil when none is set.
func (a *app) openHistory(ctx context.Context) (*history.Repo, *db.DB, error) {
	if a.cfg.DatabaseURL == "" {
		return nil, nil, nil
	}
	d, err := db.Open(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	a.closers = append(a.closers, d.Close)
	return history.NewRepo(d), d, nil
}

func (a *app) runner(repo *history.Repo) *runner.Runner {
	r := &runner.Runner{
		Settings:        a.settings,
		Log:             a.log.With().Str("component", "runner").Logger(),
		UpstreamTimeout: a.cfg.UpstreamTimeout,
		ProxyTimeout:    a.cfg.ProxyTimeout,
		Pace:            a.cfg.BookingPace,
	}
	// a nil *history.Repo must stay a nil interface
	if repo != nil {
		r.History = repo
	}
	return r
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func withApp(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		defer a.close()
		return fn(cmd, a, args)
	}
}
