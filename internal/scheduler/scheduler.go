package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/example/court-autobook/internal/internaltypes"
)

// Job is one booking run.
type Job func(ctx context.Context)

// Trigger says when to repeat the job: every fixed interval, or on a cron
// expression (5 fields or a descriptor such as @hourly).
type Trigger struct {
	Every time.Duration `json:"every,omitempty"`
	Spec  string        `json:"spec,omitempty"`
}

func (t Trigger) String() string {
	if t.Spec != "" {
		return t.Spec
	}
	return "@every " + t.Every.String()
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func (t Trigger) schedule() (cron.Schedule, error) {
	if spec := strings.TrimSpace(t.Spec); spec != "" {
		s, err := parser.Parse(spec)
		if err != nil {
			return nil, fmt.Errorf("schedule %q: %w", spec, err)
		}
		return s, nil
	}
	if t.Every < time.Second {
		return nil, fmt.Errorf("interval must be at least 1s, got %s", t.Every)
	}
	return cron.Every(t.Every), nil
}

// Status describes the recurring runner.
type Status struct {
	Running bool      `json:"running"`
	Trigger string    `json:"trigger,omitempty"`
	Since   time.Time `json:"since,omitempty"`
	Runs    int64     `json:"runs"`
	Next    time.Time `json:"next,omitempty"`
}

// Scheduler runs a job immediately and then on a trigger. A run still in
// progress when the next one is due causes that one to be skipped. Stop
// prevents further runs but never interrupts the one in flight.
type Scheduler struct {
	log zerolog.Logger

	mu      sync.Mutex
	c       *cron.Cron
	entry   cron.EntryID
	trigger Trigger
	since   time.Time

	runs atomic.Int64
	// runMu is held for the duration of a run.
	runMu sync.Mutex
}

func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{log: log.With().Str("component", "scheduler").Logger()}
}

// Start begins the recurring runs. Runs use ctx, not the scheduler's own
// lifetime, so Stop leaves an in-flight run alone.
func (s *Scheduler) Start(ctx context.Context, job Job, t Trigger) error {
	sched, err := t.schedule()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return internaltypes.ErrAlreadyRunning
	}

	l := cronLogger{s.log}
	wrapped := cron.NewChain(cron.SkipIfStillRunning(l)).Then(cron.FuncJob(func() {
		s.runMu.Lock()
		defer s.runMu.Unlock()
		n := s.runs.Add(1)
		s.log.Debug().Int64("run", n).Msg("run starting")
		job(ctx)
	}))

	c := cron.New(cron.WithParser(parser), cron.WithLogger(l))
	s.entry = c.Schedule(sched, wrapped)
	s.c = c
	s.trigger = t
	s.since = time.Now()
	c.Start()
	go wrapped.Run()

	s.log.Info().Str("trigger", t.String()).Msg("scheduler started")
	return nil
}

// Stop prevents further runs. It does not wait for a run in flight; use Wait.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return internaltypes.ErrNotRunning
	}
	s.c.Stop()
	s.c = nil
	s.log.Info().Int64("runs", s.runs.Load()).Msg("scheduler stopped")
	return nil
}

// Wait blocks until no run is in flight.
func (s *Scheduler) Wait() {
	s.runMu.Lock()
	s.runMu.Unlock()
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c != nil
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{Running: s.c != nil, Runs: s.runs.Load()}
	if s.c != nil {
		st.Trigger = s.trigger.String()
		st.Since = s.since
		st.Next = s.c.Entry(s.entry).Next
	}
	return st
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct{ l zerolog.Logger }

func (c cronLogger) Info(msg string, kv ...any) {
	c.l.Debug().Fields(kv).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.l.Error().Err(err).Fields(kv).Msg(msg)
}
