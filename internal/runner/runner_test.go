package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/court-autobook/internal/booking"
	"github.com/example/court-autobook/internal/config"
	"github.com/example/court-autobook/internal/domain/reservation"
	"github.com/example/court-autobook/internal/history"
)

type staticSettings config.Settings

func (s staticSettings) Snapshot() config.Settings { return config.Settings(s) }

type fakeTransport struct {
	mu       sync.Mutex
	doc      reservation.RawDocument
	fails    int
	reply    reservation.Response
	submits  int
	statuses []string
}

func (f *fakeTransport) Search(context.Context, reservation.SearchQuery) (reservation.RawDocument, error) {
	return f.doc, nil
}

func (f *fakeTransport) Submit(context.Context, reservation.ReservationRequest) (reservation.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	if f.submits <= f.fails {
		return reservation.Response{}, errors.New("connection reset")
	}
	return f.reply, nil
}

func (f *fakeTransport) Status(_ context.Context, guid string) (reservation.RawDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, guid)
	return map[string]any{"status": "Confirmed"}, nil
}

type memRecorder struct {
	mu   sync.Mutex
	runs []history.Run
}

func (m *memRecorder) Insert(_ context.Context, run history.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func newRunner(tr *fakeTransport) *Runner {
	st := config.DefaultSettings()
	return &Runner{
		Settings:     staticSettings(st),
		NewTransport: func(config.Settings, time.Duration) booking.Transport { return tr },
		Log:          zerolog.Nop(),
	}
}

func TestRunBooksRecordsAndNotifies(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{
		doc:   map[string]any{"slots": []any{map[string]any{"inventoryItemId": "737", "start": "2025-03-14T19:00"}}},
		reply: reservation.Response{Status: 200, Body: map[string]any{"guid": "g-9"}},
	}
	rec := &memRecorder{}
	r := newRunner(tr)
	r.History = rec
	var booked []string
	r.OnBooked = func(ref string) { booked = append(booked, ref) }

	sum := r.Run(context.Background(), "manual", booking.RunRequest{Date: "2025-03-14"})
	if !sum.Result.Booked || sum.Error != "" {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if sum.Result.BookingURL != "https://www.padelpowers.com/en/booking/court-booking/booking/g-9/" {
		t.Fatalf("booking url = %q", sum.Result.BookingURL)
	}
	if len(booked) != 1 || booked[0] != "g-9" {
		t.Fatalf("OnBooked calls = %v", booked)
	}
	if len(rec.runs) != 1 || rec.runs[0].ID != sum.ID || !rec.runs[0].Booked {
		t.Fatalf("history = %+v", rec.runs)
	}
	if last, ok := r.Last(); !ok || last.ID != sum.ID {
		t.Fatal("Last does not return the run")
	}
}

func TestRunInvalidRequestIsRecorded(t *testing.T) {
	t.Parallel()
	rec := &memRecorder{}
	r := newRunner(&fakeTransport{})
	r.History = rec

	sum := r.Run(context.Background(), "manual", booking.RunRequest{Date: "tomorrow"})
	if sum.Error == "" || sum.Result.Booked {
		t.Fatalf("expected error summary, got %+v", sum)
	}
	if len(rec.runs) != 1 || rec.runs[0].Error == nil {
		t.Fatalf("history = %+v", rec.runs)
	}
}

func TestProxyBookRetries(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{fails: 1, reply: reservation.Response{Status: 201, Body: map[string]any{"reservations": []any{map[string]any{"guid": "p-1"}}}}}
	r := newRunner(tr)
	var booked string
	r.OnBooked = func(ref string) { booked = ref }

	req := reservation.NewReservationRequest(0, 737, time.Date(2025, 3, 14, 19, 0, 0, 0, time.UTC), 60)
	out := r.ProxyBook(context.Background(), req)
	if !out.OK || out.Attempts != 2 || out.Reference != "p-1" || booked != "p-1" {
		t.Fatalf("unexpected outcome: %+v (booked %q)", out, booked)
	}
}

func TestSearchFiltersByWindow(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{doc: map[string]any{"data": []any{
		map[string]any{"inventoryItemId": "1", "start": "2025-03-14T17:00"},
		map[string]any{"inventoryItemId": "2", "start": "2025-03-14T20:00"},
	}}}
	res, err := newRunner(tr).Search(context.Background(), reservation.SearchQuery{Date: "2025-03-14", DurationMinutes: 60}, reservation.BookingWindow{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Slots) != 2 || len(res.Matched) != 1 || res.Matched[0].InventoryID != "2" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

type fallbackTransport struct {
	fakeTransport
	tried string
}

func (f *fallbackTransport) SearchWithFallback(context.Context, reservation.SearchQuery) (reservation.RawDocument, string, error) {
	return f.doc, f.tried, nil
}

func TestSearchReportsFallbackVariant(t *testing.T) {
	t.Parallel()
	tr := &fallbackTransport{tried: "/availability?playingTimes=60"}
	tr.doc = map[string]any{"slots": []any{map[string]any{"inventoryItemId": "3", "start": "2025-03-14T19:00"}}}
	r := newRunner(&tr.fakeTransport)
	r.NewTransport = func(config.Settings, time.Duration) booking.Transport { return tr }
	res, err := r.Search(context.Background(), reservation.SearchQuery{Date: "2025-03-14", DurationMinutes: 60}, reservation.BookingWindow{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.Tried != tr.tried || len(res.Matched) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestStatusSourceUsesTransport(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{}
	doc, err := newRunner(tr).StatusSource().Status(context.Background(), "g-1")
	if err != nil || doc.(map[string]any)["status"] != "Confirmed" || tr.statuses[0] != "g-1" {
		t.Fatalf("Status = %v, %v", doc, err)
	}
}
