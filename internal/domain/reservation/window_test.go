package reservation

import (
	"testing"
	"time"
)

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := ParseLocal(s)
	if err != nil {
		t.Fatalf("ParseLocal(%q) error: %v", s, err)
	}
	return v
}

func TestFitsEveningWindow(t *testing.T) {
	t.Parallel()
	tests := []struct {
		start string
		want  bool
	}{
		{start: "2025-03-14T18:30", want: true},
		{start: "2025-03-14T20:30", want: true},
		{start: "2025-03-14T20:31", want: false},
		{start: "2025-03-14T18:29", want: false},
		{start: "2025-03-14T18:30:45", want: true},
		{start: "2025-03-14T20:30:59", want: true},
		{start: "2025-03-14T23:00", want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.start, func(t *testing.T) {
			t.Parallel()
			got := Fits(mustParse(t, tt.start), "18:30", "22:00", 90)
			if got != tt.want {
				t.Fatalf("Fits(%s, 18:30, 22:00, 90) = %v, want %v", tt.start, got, tt.want)
			}
		})
	}
}

func TestFitsUsesSlotCalendarDay(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("CET", 3600)
	start := time.Date(2031, 12, 31, 19, 0, 0, 0, loc)
	if !Fits(start, "18:30", "22:00", 60) {
		t.Fatal("expected 19:00+60 to fit on the slot's own day")
	}
	// zone suffix keeps the written wall clock
	if !Fits(mustParse(t, "2025-03-14T19:00:00Z"), "18:30", "22:00", 60) {
		t.Fatal("expected Z-suffixed 19:00 to be treated as 19:00")
	}
	if !Fits(mustParse(t, "2025-03-14T19:00:00+02:00"), "18:30", "22:00", 60) {
		t.Fatal("expected offset 19:00 to be treated as 19:00")
	}
}

func TestFitsMalformedWindow(t *testing.T) {
	t.Parallel()
	start := mustParse(t, "2025-03-14T19:00")
	for _, w := range [][2]string{{"", "22:00"}, {"18:30", "22"}, {"25:00", "26:00"}, {"aa:bb", "22:00"}} {
		if Fits(start, w[0], w[1], 60) {
			t.Fatalf("Fits with window %v should be false", w)
		}
	}
	if Fits(time.Time{}, "18:30", "22:00", 60) {
		t.Fatal("zero start should never fit")
	}
	if !Fits(mustParse(t, "2025-03-14T23:00"), "22:00", "24:00", 60) {
		t.Fatal("expected window ending at 24:00 to accept 23:00+60")
	}
}

func TestParseLocalFormats(t *testing.T) {
	t.Parallel()
	for _, in := range []string{
		"2025-03-14T18:30",
		"2025-03-14T18:30:00",
		"2025-03-14T18:30:00.000",
		"2025-03-14T18:30:00Z",
		"2025-03-14T18:30:00.000Z",
		"2025-03-14T18:30:00+01:00",
		"2025-03-14 18:30:00",
	} {
		got, err := ParseLocal(in)
		if err != nil {
			t.Fatalf("ParseLocal(%q) error: %v", in, err)
		}
		if FormatLocal(got) != "2025-03-14T18:30" {
			t.Fatalf("FormatLocal(ParseLocal(%q)) = %s", in, FormatLocal(got))
		}
	}
	if _, err := ParseLocal("tomorrow evening"); err == nil {
		t.Fatal("expected error for unparsable timestamp")
	}
}

func TestBookingWindowValidate(t *testing.T) {
	t.Parallel()
	if err := DefaultWindow().Validate(); err != nil {
		t.Fatalf("default window invalid: %v", err)
	}
	if err := (BookingWindow{Start: "22:00", End: "18:30"}).Validate(); err == nil {
		t.Fatal("expected inverted window to be rejected")
	}
	w := BookingWindow{End: "21:00"}.WithDefaults()
	if w.Start != DefaultWindowStart || w.End != "21:00" {
		t.Fatalf("WithDefaults = %+v", w)
	}
}

func TestFilterByWindowKeepsOrder(t *testing.T) {
	t.Parallel()
	slots := []CandidateSlot{
		{InventoryID: "1", Start: "2025-03-14T21:00"},
		{InventoryID: "2", Start: "2025-03-14T19:00"},
		{InventoryID: "3", Start: "garbage"},
		{InventoryID: "4", Start: "2025-03-14T18:30"},
	}
	got := FilterByWindow(slots, DefaultWindow(), 60)
	if len(got) != 2 || got[0].InventoryID != "2" || got[1].InventoryID != "4" {
		t.Fatalf("FilterByWindow = %+v", got)
	}
}

func TestNewReservationRequest(t *testing.T) {
	t.Parallel()
	req := NewReservationRequest(85, 737, mustParse(t, "2025-03-14T21:15:30"), 90)
	if req.StartDateTime != "2025-03-14T21:15" || req.EndDateTime != "2025-03-14T22:45" {
		t.Fatalf("unexpected times: %s..%s", req.StartDateTime, req.EndDateTime)
	}
	if req.ReservationTypeID != 85 || len(req.Reservations) != 1 || req.Reservations[0].InventoryItemID != 737 {
		t.Fatalf("unexpected request: %+v", req)
	}
}
