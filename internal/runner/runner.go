// Package runner wires settings, the upstream transport and the booking core
// into the operations the CLI and control plane expose.
package runner

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/example/court-autobook/internal/booking"
	"github.com/example/court-autobook/internal/config"
	"github.com/example/court-autobook/internal/domain/reservation"
	"github.com/example/court-autobook/internal/extract"
	"github.com/example/court-autobook/internal/foys"
	"github.com/example/court-autobook/internal/history"
	"github.com/example/court-autobook/internal/poller"
)

// SettingsSource supplies the settings snapshot a run starts from.
type SettingsSource interface {
	Snapshot() config.Settings
}

// Recorder stores finished runs.
type Recorder interface {
	Insert(ctx context.Context, run history.Run) error
}

// TransportFunc builds a transport for one settings snapshot.
type TransportFunc func(s config.Settings, timeout time.Duration) booking.Transport

// FoysTransport is the production TransportFunc.
func FoysTransport(s config.Settings, timeout time.Duration) booking.Transport {
	return foysClient(s, timeout)
}

func foysClient(s config.Settings, timeout time.Duration) *foys.Client {
	return foys.New(foys.Config{
		APIBase:           s.APIBase,
		Token:             s.Token,
		OrganisationID:    s.OrganisationID,
		FederationID:      s.FederationID,
		LocationID:        s.LocationID,
		ReservationTypeID: s.ReservationTypeID,
		Origin:            s.Origin,
	}, timeout)
}

// Summary describes one finished run.
type Summary struct {
	ID         uuid.UUID          `json:"id"`
	Trigger    string             `json:"trigger"`
	StartedAt  time.Time          `json:"startedAt"`
	FinishedAt time.Time          `json:"finishedAt"`
	Request    booking.RunRequest `json:"request"`
	Result     booking.Result     `json:"result"`
	Error      string             `json:"error,omitempty"`
}

type Runner struct {
	Settings     SettingsSource
	NewTransport TransportFunc
	// History is optional.
	History Recorder
	Log     zerolog.Logger

	UpstreamTimeout time.Duration
	ProxyTimeout    time.Duration
	// Pace spaces submissions within a run; zero means unpaced.
	Pace time.Duration
	// OnBooked is called after a run or proxy booking that produced a
	// reservation reference.
	OnBooked func(reference string)

	mu   sync.Mutex
	last *Summary
}

func (r *Runner) transport(s config.Settings, timeout time.Duration) booking.Transport {
	if r.NewTransport != nil {
		return r.NewTransport(s, timeout)
	}
	return FoysTransport(s, timeout)
}

func (r *Runner) submitter(s config.Settings, tr booking.Transport) *booking.Submitter {
	return &booking.Submitter{Transport: tr, ReservationTypeID: s.ReservationTypeID, BookingURLBase: s.BookingURLBase}
}

// Run executes one booking run with a fresh settings snapshot.
func (r *Runner) Run(ctx context.Context, trigger string, req booking.RunRequest) Summary {
	st := r.Settings.Snapshot()
	sum := Summary{ID: uuid.New(), Trigger: trigger, StartedAt: time.Now(), Request: req}
	log := r.Log.With().Str("run_id", sum.ID.String()).Str("trigger", trigger).Logger()
	r.checkToken(log, st)

	tr := r.transport(st, r.UpstreamTimeout)
	o := &booking.Orchestrator{Transport: tr, Submitter: r.submitter(st, tr)}
	if r.Pace > 0 {
		o.Pace = rate.NewLimiter(rate.Every(r.Pace), 1)
	}

	log.Info().Str("date", req.Date).Ints("durations", req.Durations).Str("window", req.Window.WithDefaults().String()).Msg("run starting")
	res, err := o.Run(ctx, req)
	sum.FinishedAt = time.Now()
	sum.Result = res
	if err != nil {
		sum.Error = err.Error()
	}

	switch {
	case err != nil:
		log.Error().Err(err).Msg("run failed")
	case res.Booked:
		log.Info().
			Int("duration", res.Duration).
			Str("inventory_id", res.Slot.InventoryID).
			Str("start", res.Slot.Start).
			Str("booking_url", res.BookingURL).
			Msg("slot booked")
	default:
		ev := log.Info()
		for _, d := range res.Details {
			ev = ev.Dict("duration_"+strconv.Itoa(d.Duration), zerolog.Dict().Int("found", d.Found).Int("candidates", d.Candidates).Int("rejected", len(d.Rejections)).Str("error", d.Error))
		}
		ev.Msg("no slot booked")
	}

	r.record(ctx, log, sum)
	r.mu.Lock()
	r.last = &sum
	r.mu.Unlock()

	if res.Booked && res.Outcome != nil && res.Outcome.Reference != "" && r.OnBooked != nil {
		r.OnBooked(res.Outcome.Reference)
	}
	return sum
}

// Last returns the most recent run summary, if any.
func (r *Runner) Last() (Summary, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return Summary{}, false
	}
	return *r.last, true
}

// ProxyBook submits a prepared request with bounded retry and backoff.
func (r *Runner) ProxyBook(ctx context.Context, req reservation.ReservationRequest) booking.Outcome {
	st := r.Settings.Snapshot()
	r.checkToken(r.Log, st)
	if req.ReservationTypeID == 0 {
		req.ReservationTypeID = st.ReservationTypeID
	}
	tr := r.transport(st, r.ProxyTimeout)
	out := (&booking.Retrier{Submitter: r.submitter(st, tr)}).Do(ctx, req)

	ev := r.Log.Info()
	if !out.OK {
		ev = r.Log.Warn()
		if out.Failure != nil {
			ev = ev.Str("class", string(out.Failure.Class)).Int("status", out.Failure.Status)
		}
	}
	ev.Int("attempts", out.Attempts).Str("reference", out.Reference).Msg("proxy booking finished")

	if out.OK && out.Reference != "" && r.OnBooked != nil {
		r.OnBooked(out.Reference)
	}
	return out
}

// FallbackSearcher is implemented by transports that can retry a search
// through alternative URLs and report the one that answered.
type FallbackSearcher interface {
	SearchWithFallback(ctx context.Context, q reservation.SearchQuery) (reservation.RawDocument, string, error)
}

// SearchResult is one search with its extracted and window-matched slots.
type SearchResult struct {
	Query   reservation.SearchQuery     `json:"query"`
	Tried   string                      `json:"tried,omitempty"`
	Raw     reservation.RawDocument     `json:"raw,omitempty"`
	Slots   []reservation.CandidateSlot `json:"slots"`
	Matched []reservation.CandidateSlot `json:"matched"`
}

// Search runs one availability search and filters it by w. Transports that
// implement FallbackSearcher walk their URL variants.
func (r *Runner) Search(ctx context.Context, q reservation.SearchQuery, w reservation.BookingWindow) (SearchResult, error) {
	tr := r.transport(r.Settings.Snapshot(), r.UpstreamTimeout)
	var (
		doc   reservation.RawDocument
		tried string
		err   error
	)
	if fs, ok := tr.(FallbackSearcher); ok {
		doc, tried, err = fs.SearchWithFallback(ctx, q)
	} else {
		doc, err = tr.Search(ctx, q)
	}
	if err != nil {
		return SearchResult{Query: q}, err
	}
	slots := extract.Slots(doc)
	return SearchResult{
		Query:   q,
		Tried:   tried,
		Raw:     doc,
		Slots:   slots,
		Matched: reservation.FilterByWindow(slots, w.WithDefaults(), q.DurationMinutes),
	}, nil
}

// Status queries one reservation once.
func (r *Runner) Status(ctx context.Context, guid string) (reservation.RawDocument, error) {
	return r.transport(r.Settings.Snapshot(), r.UpstreamTimeout).Status(ctx, guid)
}

// StatusSource returns a status source bound to the current settings, for
// the poller.
func (r *Runner) StatusSource() poller.StatusSource { return &statusSource{r: r} }

type statusSource struct{ r *Runner }

func (s *statusSource) Status(ctx context.Context, guid string) (reservation.RawDocument, error) {
	return s.r.Status(ctx, guid)
}

// Diagnose probes the configured API host for DNS, TCP and HTTP reachability.
func (r *Runner) Diagnose(ctx context.Context) foys.Diagnosis {
	d := foysClient(r.Settings.Snapshot(), r.UpstreamTimeout).Diagnose(ctx)
	if !d.OK() {
		r.Log.Warn().Str("api_base", d.APIBase).Str("dns", d.DNS.Error).Str("tcp", d.TCP.Error).Str("http", d.HTTP.Error).Msg("upstream unreachable")
	}
	return d
}

func (r *Runner) checkToken(log zerolog.Logger, st config.Settings) {
	if !st.HasToken() {
		log.Warn().Msg("no bearer token configured; upstream calls will be anonymous")
		return
	}
	ti, err := foys.InspectToken(st.Token)
	if err != nil {
		log.Debug().Err(err).Msg("token is not a readable JWT")
		return
	}
	if ti.Expired(time.Now()) {
		log.Warn().Time("expired_at", ti.ExpiresAt).Msg("bearer token has expired")
	}
}

func (r *Runner) record(ctx context.Context, log zerolog.Logger, sum Summary) {
	if r.History == nil {
		return
	}
	var runErr error
	if sum.Error != "" {
		runErr = errors.New(sum.Error)
	}
	row, err := history.FromResult(sum.ID, sum.Trigger, sum.StartedAt, sum.FinishedAt, sum.Request, sum.Result, runErr)
	if err != nil {
		log.Error().Err(err).Msg("history row")
		return
	}
	// the run's own ctx may already be done
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.History.Insert(hctx, row); err != nil {
		log.Error().Err(err).Msg("history insert failed")
	}
}
