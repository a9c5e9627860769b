package web

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/court-autobook/internal/auth"
	"github.com/example/court-autobook/internal/config"
	"github.com/example/court-autobook/internal/domain/reservation"
	"github.com/example/court-autobook/internal/history"
	"github.com/example/court-autobook/internal/poller"
	"github.com/example/court-autobook/internal/runner"
	"github.com/example/court-autobook/internal/scheduler"
)

//go:embed templates/*.html
var fs embed.FS

var pages = template.Must(template.ParseFS(fs, "templates/*.html"))

// SettingsStore is the persisted settings the control plane reads and edits.
type SettingsStore interface {
	Snapshot() config.Settings
	Update(patch map[string]any) (config.Settings, error)
}

// RunLister lists recorded runs.
type RunLister interface {
	Recent(ctx context.Context, limit int) ([]history.Run, error)
}

type Server struct {
	Auth      *auth.Store
	Settings  SettingsStore
	Runner    *runner.Runner
	Scheduler *scheduler.Scheduler
	Poller    *poller.Poller
	// History is nil when no database is configured.
	History RunLister
	Log     zerolog.Logger

	// BaseContext bounds scheduled runs and status polls, which outlive the
	// request that started them.
	BaseContext context.Context
}

type pageData struct {
	Title    string
	LoggedIn bool
	Settings config.Settings
	Schedule scheduler.Status
	Poll     *reservation.PollState
	LastRun  *runner.Summary
	AuthOn   bool
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("/", s.handleHome)
	mux.HandleFunc("/api/login", s.handleLogin)
	mux.HandleFunc("/api/logout", s.handleLogout)

	api := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.Auth.RequireAuth(h))
	}
	api("/api/config", s.handleConfig)
	api("/api/start", s.handleStart)
	api("/api/stop", s.handleStop)
	api("/api/proxy-booking", s.handleProxyBooking)
	api("/api/proxy-search", s.handleProxySearch)
	api("/api/booking-status", s.handleBookingStatus)
	api("/api/poll", s.handlePoll)
	api("/api/poll/stop", s.handlePollStop)
	api("/api/runs", s.handleRuns)
	api("/api/diag", s.handleDiag)

	return s.logRequests(mux)
}

func (s *Server) bg() context.Context {
	if s.BaseContext != nil {
		return s.BaseContext
	}
	return context.Background()
}

// Watch starts a fresh status poll for a new reservation.
func (s *Server) Watch(reference string) {
	if s.Poller == nil || reference == "" {
		return
	}
	s.Log.Info().Str("guid", reference).Msg("status poll started")
	s.Poller.Start(s.bg(), reference)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	_, loggedIn := s.Auth.GetSession(r)
	data := pageData{Title: "Court autobook", LoggedIn: loggedIn, AuthOn: s.Auth.Enabled()}
	if loggedIn {
		data.Settings = s.Settings.Snapshot().Redacted()
		data.Schedule = s.Scheduler.Status()
		data.Poll = s.pollState()
		if last, ok := s.Runner.Last(); ok {
			data.LastRun = &last
		}
	}
	s.render(w, "index.html", data)
}

func (s *Server) render(w http.ResponseWriter, name string, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		s.Log.Error().Err(err).Str("template", name).Msg("render")
		http.Error(w, "render error: "+err.Error(), http.StatusInternalServerError)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		ev := s.Log.Debug()
		if rec.status >= 500 {
			ev = s.Log.Warn()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(start)).
			Msg("http")
	})
}

// Start serves h on addr until ctx is done, then shuts down gracefully.
func Start(ctx context.Context, addr string, h http.Handler, log zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info().Str("addr", addr).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
