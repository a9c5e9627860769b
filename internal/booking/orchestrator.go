package booking

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/example/court-autobook/internal/domain/reservation"
	"github.com/example/court-autobook/internal/extract"
)

// DefaultDurations is tried when a run names none.
var DefaultDurations = []int{90}

// RunRequest describes one booking run. Zero fields take defaults.
type RunRequest struct {
	Date      string                    `json:"date"` // YYYY-MM-DD
	Durations []int                     `json:"durations"`
	Window    reservation.BookingWindow `json:"window"`
}

// Rejection is one candidate the upstream did not accept.
type Rejection struct {
	InventoryID string   `json:"inventoryItemId"`
	Start       string   `json:"start"`
	Failure     *Failure `json:"failure"`
}

// DurationReport is the diagnostic for one duration that did not book.
type DurationReport struct {
	Duration   int                     `json:"duration"`
	Found      int                     `json:"found"`
	Candidates int                     `json:"candidates"`
	Status     int                     `json:"status,omitempty"`
	Body       reservation.RawDocument `json:"body,omitempty"`
	Error      string                  `json:"error,omitempty"`
	Rejections []Rejection             `json:"rejections,omitempty"`
}

// Result is the outcome of a run. Booked false is a normal negative result.
type Result struct {
	Booked     bool                       `json:"booked"`
	Date       string                     `json:"date"`
	Duration   int                        `json:"duration,omitempty"`
	Slot       *reservation.CandidateSlot `json:"slot,omitempty"`
	Outcome    *Outcome                   `json:"outcome,omitempty"`
	BookingURL string                     `json:"bookingUrl,omitempty"`
	Details    []DurationReport           `json:"details,omitempty"`
}

// Orchestrator runs search, extract, filter and submit for each duration in
// turn. Calls are strictly sequential: one search or submission at a time,
// candidates in discovery order, durations in request order. It keeps no
// state between runs.
type Orchestrator struct {
	Transport Transport
	Submitter *Submitter
	// Pace, when set, is waited on before every submission. A limiter with a
	// burst of one lets the first submission through at once.
	Pace *rate.Limiter
	// Now supplies today's date when a run names none.
	Now func() time.Time
}

// Run executes one booking run. The error is non-nil only for a malformed
// request or a cancelled context; upstream and network failures are
// recorded in the result.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (Result, error) {
	req, err := o.normalize(req)
	if err != nil {
		return Result{}, err
	}
	res := Result{Date: req.Date}

	for _, dur := range req.Durations {
		rep := DurationReport{Duration: dur}

		doc, err := o.Transport.Search(ctx, reservation.SearchQuery{Date: req.Date, DurationMinutes: dur})
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			f := classify(err)
			rep.Status, rep.Body, rep.Error = f.Status, f.Body, f.Message
			res.Details = append(res.Details, rep)
			continue
		}

		slots := extract.Slots(doc)
		matched := reservation.FilterByWindow(slots, req.Window, dur)
		rep.Found, rep.Candidates = len(slots), len(matched)

		for i := range matched {
			slot := matched[i]
			if o.Pace != nil {
				if err := o.Pace.Wait(ctx); err != nil {
					res.Details = append(res.Details, rep)
					return res, err
				}
			}

			out := o.submitter().Submit(ctx, slot, dur)
			if out.OK {
				res.Booked = true
				res.Duration = dur
				res.Slot = &slot
				res.Outcome = &out
				res.BookingURL = out.BookingURL
				res.Details = nil
				return res, nil
			}
			rep.Rejections = append(rep.Rejections, Rejection{
				InventoryID: slot.InventoryID,
				Start:       slot.Start,
				Failure:     out.Failure,
			})
			if ctx.Err() != nil {
				res.Details = append(res.Details, rep)
				return res, ctx.Err()
			}
		}
		res.Details = append(res.Details, rep)
	}
	return res, nil
}

func (o *Orchestrator) submitter() *Submitter {
	if o.Submitter != nil {
		return o.Submitter
	}
	return &Submitter{Transport: o.Transport}
}

func (o *Orchestrator) normalize(req RunRequest) (RunRequest, error) {
	if req.Date == "" {
		now := time.Now
		if o.Now != nil {
			now = o.Now
		}
		req.Date = now().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", req.Date); err != nil {
		return req, fmt.Errorf("date %q: want YYYY-MM-DD", req.Date)
	}
	if len(req.Durations) == 0 {
		req.Durations = DefaultDurations
	}
	for _, d := range req.Durations {
		if d <= 0 {
			return req, fmt.Errorf("duration must be positive, got %d", d)
		}
	}
	req.Window = req.Window.WithDefaults()
	if err := req.Window.Validate(); err != nil {
		return req, err
	}
	return req, nil
}
