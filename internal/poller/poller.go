// Package poller follows a created reservation until it leaves "pending".
package poller

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/example/court-autobook/internal/domain/reservation"
	"github.com/example/court-autobook/internal/extract"
)

// DefaultInterval is the pause between status queries.
const DefaultInterval = 8 * time.Second

var statusPaths = []string{"status", "bookingStatus", "state", "reservations.0.status"}

// StatusSource queries one reservation's status.
type StatusSource interface {
	Status(ctx context.Context, guid string) (reservation.RawDocument, error)
}

// Poller owns at most one active poll. Starting a new one stops the previous
// one first.
type Poller struct {
	Source   StatusSource
	Interval time.Duration
	// OnUpdate, when set, is called after every query with the new state.
	OnUpdate func(reservation.PollState)

	mu      sync.Mutex
	current *Poll
}

// Poll is the handle of one running or finished poll.
type Poll struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	state reservation.PollState
}

// Start cancels any previous poll, waits for it to exit, then begins polling
// guid: one query now, then one every Interval until a status other than
// pending arrives, Stop is called, or ctx ends.
func (p *Poller) Start(ctx context.Context, guid string) *Poll {
	pctx, cancel := context.WithCancel(ctx)
	next := &Poll{
		cancel: cancel,
		done:   make(chan struct{}),
		state: reservation.PollState{
			GUID:       guid,
			LastStatus: reservation.PollPending,
			Active:     true,
			Updated:    time.Now(),
		},
	}

	p.mu.Lock()
	prev := p.current
	p.current = next
	p.mu.Unlock()

	if prev != nil {
		prev.stop()
	}
	go p.loop(pctx, next)
	return next
}

// Stop ends the active poll, if any, and waits for it to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	cur := p.current
	p.mu.Unlock()
	if cur != nil {
		cur.stop()
	}
}

// Current returns the most recent poll, or nil if none was started.
func (p *Poller) Current() *Poll {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// State is a snapshot of the most recent poll; the zero value when none.
func (p *Poller) State() reservation.PollState {
	if cur := p.Current(); cur != nil {
		return cur.State()
	}
	return reservation.PollState{}
}

func (p *Poller) loop(ctx context.Context, h *Poll) {
	defer close(h.done)
	defer h.update(func(s *reservation.PollState) { s.Active = false })

	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		if p.query(ctx, h) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// query runs one status query and reports whether polling is finished. A
// successful reply without a status ends the poll as "unknown".
func (p *Poller) query(ctx context.Context, h *Poll) bool {
	doc, err := p.Source.Status(ctx, h.GUID())
	if ctx.Err() != nil {
		return true
	}
	var terminal bool
	st := h.update(func(s *reservation.PollState) {
		s.Queries++
		s.Updated = time.Now()
		if err != nil {
			s.LastStatus = reservation.PollUnknown
			s.Error = err.Error()
			return
		}
		s.Error = ""
		raw := extract.Lookup(doc, statusPaths...)
		if raw == "" {
			raw = string(reservation.PollUnknown)
		}
		s.Status = raw
		if strings.EqualFold(raw, "pending") {
			s.LastStatus = reservation.PollPending
		} else {
			s.LastStatus = reservation.PollTerminal
			terminal = true
		}
	})
	if p.OnUpdate != nil {
		p.OnUpdate(st)
	}
	return terminal
}

// State returns a snapshot of the poll.
func (h *Poll) State() reservation.PollState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// GUID is the reservation being polled.
func (h *Poll) GUID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state.GUID
}

// Done is closed when the poll has exited.
func (h *Poll) Done() <-chan struct{} { return h.done }

func (h *Poll) stop() {
	h.cancel()
	<-h.done
}

func (h *Poll) update(fn func(*reservation.PollState)) reservation.PollState {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(&h.state)
	return h.state
}
