package booking

import (
	"context"
	"strconv"
	"strings"

	"github.com/example/court-autobook/internal/domain/reservation"
	"github.com/example/court-autobook/internal/extract"
)

// DefaultBookingURLBase is where the operator completes a booking.
const DefaultBookingURLBase = "https://www.padelpowers.com/en/booking/court-booking/booking/"

var referencePaths = []string{"guid", "reservations.0.guid", "bookingId", "id"}

// Submitter performs exactly one submission per call. It never retries.
type Submitter struct {
	Transport         Transport
	ReservationTypeID int
	BookingURLBase    string
}

// Submit books slot for durationMinutes. Validation failures never reach the
// transport.
func (s *Submitter) Submit(ctx context.Context, slot reservation.CandidateSlot, durationMinutes int) Outcome {
	id, err := strconv.Atoi(strings.TrimSpace(slot.InventoryID))
	if err != nil || id <= 0 {
		return failed(invalid("inventory id %q is not a positive integer", slot.InventoryID))
	}
	start, err := slot.StartTime()
	if err != nil {
		return failed(invalid("start %q: %v", slot.Start, err))
	}
	if durationMinutes <= 0 {
		return failed(invalid("duration must be positive, got %d", durationMinutes))
	}
	return s.SubmitRequest(ctx, reservation.NewReservationRequest(s.ReservationTypeID, id, start, durationMinutes))
}

// SubmitRequest makes one attempt with a prepared request.
func (s *Submitter) SubmitRequest(ctx context.Context, req reservation.ReservationRequest) Outcome {
	if f := validateRequest(req); f != nil {
		return failed(f)
	}
	resp, err := s.Transport.Submit(ctx, req)
	if err != nil {
		out := failed(classify(err))
		out.Attempts = 1
		return out
	}
	if resp.Status >= 300 {
		out := failed(&Failure{
			Class:   ClassUpstreamRejected,
			Status:  resp.Status,
			Body:    resp.Body,
			Message: (&reservation.UpstreamError{Status: resp.Status, Body: resp.Body}).Error(),
		})
		out.Attempts = 1
		return out
	}

	out := Outcome{OK: true, Status: resp.Status, Payload: resp.Body, Attempts: 1}
	out.Reference = extract.Lookup(resp.Body, referencePaths...)
	if out.Reference != "" {
		out.BookingURL = s.bookingURL(out.Reference)
	}
	out.TimeOutAt = extract.Lookup(resp.Body, "timeOutAt", "reservations.0.timeOutAt")
	return out
}

func (s *Submitter) bookingURL(ref string) string {
	base := s.BookingURLBase
	if base == "" {
		base = DefaultBookingURLBase
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + ref + "/"
}

func validateRequest(req reservation.ReservationRequest) *Failure {
	if len(req.Reservations) == 0 {
		return invalid("no reservations in request")
	}
	for _, r := range req.Reservations {
		if r.InventoryItemID <= 0 {
			return invalid("inventoryItemId must be positive")
		}
	}
	start, err := reservation.ParseLocal(req.StartDateTime)
	if err != nil {
		return invalid("startDateTime %q: %v", req.StartDateTime, err)
	}
	end, err := reservation.ParseLocal(req.EndDateTime)
	if err != nil {
		return invalid("endDateTime %q: %v", req.EndDateTime, err)
	}
	if !end.After(start) {
		return invalid("endDateTime must be after startDateTime")
	}
	return nil
}
