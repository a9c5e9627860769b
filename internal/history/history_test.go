package history

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/example/court-autobook/internal/booking"
	"github.com/example/court-autobook/internal/domain/reservation"
)

func TestFromResultBooked(t *testing.T) {
	t.Parallel()
	id := uuid.New()
	start := time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC)
	req := booking.RunRequest{Date: "2025-03-14", Durations: []int{60, 90}, Window: reservation.DefaultWindow()}
	res := booking.Result{
		Booked:     true,
		Date:       "2025-03-14",
		Duration:   90,
		Slot:       &reservation.CandidateSlot{InventoryID: "737", Start: "2025-03-14T19:00"},
		Outcome:    &booking.Outcome{OK: true, Reference: "g-1"},
		BookingURL: "https://example.test/g-1/",
	}

	run, err := FromResult(id, "schedule", start, start.Add(time.Second), req, res, nil)
	if err != nil {
		t.Fatalf("FromResult: %v", err)
	}
	if run.ID != id || !run.Booked || *run.Duration != 90 || *run.InventoryID != "737" || *run.Reference != "g-1" {
		t.Fatalf("unexpected run: %+v", run)
	}
	if run.Error != nil || string(run.Details) != "[]" {
		t.Fatalf("error/details = %v %s", run.Error, run.Details)
	}
}

func TestFromResultNotBooked(t *testing.T) {
	t.Parallel()
	req := booking.RunRequest{Date: "2025-03-14"}
	res := booking.Result{Details: []booking.DurationReport{{Duration: 90, Found: 3, Candidates: 0}}}

	run, err := FromResult(uuid.New(), "manual", time.Now(), time.Now(), req, res, errors.New("context canceled"))
	if err != nil {
		t.Fatalf("FromResult: %v", err)
	}
	if run.Booked || run.Duration != nil || run.Reference != nil || run.Date != "2025-03-14" {
		t.Fatalf("unexpected run: %+v", run)
	}
	if run.Error == nil || *run.Error != "context canceled" {
		t.Fatalf("error = %v", run.Error)
	}
	var details []booking.DurationReport
	if err := json.Unmarshal(run.Details, &details); err != nil || len(details) != 1 || details[0].Found != 3 {
		t.Fatalf("details = %s (%v)", run.Details, err)
	}
	if len(run.Durations) != 1 || run.Durations[0] != 90 || run.WindowStart != "18:30" {
		t.Fatalf("defaults not applied: %v %s", run.Durations, run.WindowStart)
	}
}
