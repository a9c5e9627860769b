package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/court-autobook/internal/domain/reservation"
)

type scripted struct {
	mu      sync.Mutex
	replies []any // reservation.RawDocument or error
	calls   []string
}

func (s *scripted) Status(_ context.Context, guid string) (reservation.RawDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, guid)
	if len(s.replies) == 0 {
		return map[string]any{"status": "Pending"}, nil
	}
	r := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	if err, ok := r.(error); ok {
		return nil, err
	}
	return r, nil
}

func (s *scripted) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func waitDone(t *testing.T, h *Poll) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("poll did not finish")
	}
}

func TestPollStopsOnTerminalStatus(t *testing.T) {
	t.Parallel()
	src := &scripted{replies: []any{
		map[string]any{"status": "Pending"},
		map[string]any{"status": "Confirmed"},
	}}
	p := &Poller{Source: src, Interval: 5 * time.Millisecond}
	h := p.Start(context.Background(), "g-1")
	waitDone(t, h)

	// give a stray tick a chance to show up
	time.Sleep(20 * time.Millisecond)
	if n := src.count(); n != 2 {
		t.Fatalf("issued %d queries, want 2", n)
	}
	st := h.State()
	if st.Active || st.LastStatus != reservation.PollTerminal || st.Status != "Confirmed" || st.Queries != 2 {
		t.Fatalf("unexpected state: %+v", st)
	}
}

func TestPollStatusAliases(t *testing.T) {
	t.Parallel()
	for _, doc := range []map[string]any{
		{"bookingStatus": "PAID"},
		{"state": "cancelled"},
		{"reservations": []any{map[string]any{"status": "Confirmed"}}},
	} {
		src := &scripted{replies: []any{doc}}
		h := (&Poller{Source: src, Interval: time.Millisecond}).Start(context.Background(), "g")
		waitDone(t, h)
		if st := h.State(); st.LastStatus != reservation.PollTerminal || st.Queries != 1 {
			t.Fatalf("doc %v: state %+v", doc, st)
		}
	}
}

func TestPollStopsWhenReplyHasNoStatus(t *testing.T) {
	t.Parallel()
	src := &scripted{replies: []any{map[string]any{"guid": "g", "amount": 20}}}
	h := (&Poller{Source: src, Interval: time.Millisecond}).Start(context.Background(), "g")
	waitDone(t, h)
	time.Sleep(10 * time.Millisecond)
	if n := src.count(); n != 1 {
		t.Fatalf("issued %d queries, want 1", n)
	}
	st := h.State()
	if st.Active || st.LastStatus != reservation.PollTerminal || st.Status != "unknown" || st.Error != "" {
		t.Fatalf("unexpected state: %+v", st)
	}
}

func TestPollFailuresAreUnknownAndContinue(t *testing.T) {
	t.Parallel()
	src := &scripted{replies: []any{
		errors.New("timeout"),
		errors.New("connection reset"),
		map[string]any{"status": "pending"},
		map[string]any{"status": "Failed"},
	}}
	var mu sync.Mutex
	var seen []reservation.PollStatus
	p := &Poller{Source: src, Interval: time.Millisecond, OnUpdate: func(s reservation.PollState) {
		mu.Lock()
		seen = append(seen, s.LastStatus)
		mu.Unlock()
	}}
	waitDone(t, p.Start(context.Background(), "g"))

	mu.Lock()
	defer mu.Unlock()
	want := []reservation.PollStatus{reservation.PollUnknown, reservation.PollUnknown, reservation.PollPending, reservation.PollTerminal}
	if len(seen) != len(want) {
		t.Fatalf("updates %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("updates %v, want %v", seen, want)
		}
	}
}

func TestStartReplacesPreviousPoll(t *testing.T) {
	t.Parallel()
	src := &scripted{}
	p := &Poller{Source: src, Interval: time.Hour}
	first := p.Start(context.Background(), "old")

	second := p.Start(context.Background(), "new")
	select {
	case <-first.Done():
	default:
		t.Fatal("previous poll still running after Start returned")
	}
	if first.State().Active {
		t.Fatal("previous poll still marked active")
	}
	if p.Current() != second || p.State().GUID != "new" {
		t.Fatalf("current poll = %+v", p.State())
	}

	p.Stop()
	waitDone(t, second)
	if p.State().Active {
		t.Fatal("poll still active after Stop")
	}
}

func TestStopWithoutPoll(t *testing.T) {
	t.Parallel()
	p := &Poller{Source: &scripted{}}
	p.Stop()
	if st := p.State(); st.GUID != "" || st.Active {
		t.Fatalf("unexpected state: %+v", st)
	}
}
