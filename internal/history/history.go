// Package history keeps an append-only record of booking runs. It is an
// audit trail only: nothing reads it to decide whether to book.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/example/court-autobook/internal/booking"
	"github.com/example/court-autobook/internal/db"
)

type Run struct {
	ID          uuid.UUID       `json:"id"`
	Trigger     string          `json:"trigger"`
	StartedAt   time.Time       `json:"startedAt"`
	FinishedAt  time.Time       `json:"finishedAt"`
	Date        string          `json:"date"`
	Durations   []int           `json:"durations"`
	WindowStart string          `json:"windowStart"`
	WindowEnd   string          `json:"windowEnd"`
	Booked      bool            `json:"booked"`
	Duration    *int            `json:"duration,omitempty"`
	InventoryID *string         `json:"inventoryItemId,omitempty"`
	SlotStart   *string         `json:"start,omitempty"`
	Reference   *string         `json:"reference,omitempty"`
	BookingURL  *string         `json:"bookingUrl,omitempty"`
	Error       *string         `json:"error,omitempty"`
	Details     json.RawMessage `json:"details"`
}

// FromResult builds a history row for a finished run. runErr is the error
// returned alongside res, if any.
func FromResult(id uuid.UUID, trigger string, started, finished time.Time, req booking.RunRequest, res booking.Result, runErr error) (Run, error) {
	w := req.Window.WithDefaults()
	r := Run{
		ID:          id,
		Trigger:     trigger,
		StartedAt:   started,
		FinishedAt:  finished,
		Date:        res.Date,
		Durations:   req.Durations,
		WindowStart: w.Start,
		WindowEnd:   w.End,
		Booked:      res.Booked,
	}
	if r.Date == "" {
		r.Date = req.Date
	}
	if len(r.Durations) == 0 {
		r.Durations = booking.DefaultDurations
	}
	if res.Booked {
		r.Duration = &res.Duration
		if res.Slot != nil {
			r.InventoryID = &res.Slot.InventoryID
			r.SlotStart = &res.Slot.Start
		}
		if res.Outcome != nil && res.Outcome.Reference != "" {
			r.Reference = &res.Outcome.Reference
		}
		if res.BookingURL != "" {
			r.BookingURL = &res.BookingURL
		}
	}
	if runErr != nil {
		msg := runErr.Error()
		r.Error = &msg
	}
	details := res.Details
	if details == nil {
		details = []booking.DurationReport{}
	}
	b, err := json.Marshal(details)
	if err != nil {
		return Run{}, fmt.Errorf("marshal details: %w", err)
	}
	r.Details = b
	return r, nil
}

type Repo struct{ db *db.DB }

func NewRepo(d *db.DB) *Repo { return &Repo{db: d} }

func (r *Repo) Insert(ctx context.Context, run Run) error {
	err := r.db.Exec(ctx, `
INSERT INTO runs(id,trigger,started_at,finished_at,target_date,durations,window_start,window_end,booked,duration,inventory_id,slot_start,reference,booking_url,error,details)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		run.ID, run.Trigger, run.StartedAt, run.FinishedAt, run.Date, run.Durations, run.WindowStart, run.WindowEnd,
		run.Booked, run.Duration, run.InventoryID, run.SlotStart, run.Reference, run.BookingURL, run.Error, []byte(run.Details),
	)
	return db.WrapNotFound(err)
}

// Recent returns the latest runs, newest first.
func (r *Repo) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
SELECT id,trigger,started_at,finished_at,target_date,durations,window_start,window_end,booked,duration,inventory_id,slot_start,reference,booking_url,error,details
FROM runs
ORDER BY started_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, db.WrapNotFound(err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var run Run
		var durations []int32
		var details []byte
		if err := rows.Scan(&run.ID, &run.Trigger, &run.StartedAt, &run.FinishedAt, &run.Date, &durations,
			&run.WindowStart, &run.WindowEnd, &run.Booked, &run.Duration, &run.InventoryID, &run.SlotStart,
			&run.Reference, &run.BookingURL, &run.Error, &details); err != nil {
			return nil, err
		}
		run.Durations = make([]int, len(durations))
		for i, d := range durations {
			run.Durations[i] = int(d)
		}
		run.Details = details
		out = append(out, run)
	}
	return out, rows.Err()
}
