package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/court-autobook/internal/booking"
	"github.com/example/court-autobook/internal/config"
	"github.com/example/court-autobook/internal/domain/reservation"
	"github.com/example/court-autobook/internal/internaltypes"
	"github.com/example/court-autobook/internal/scheduler"
)

const maxBody = 1 << 20

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func fail(w http.ResponseWriter, code int, reason string) {
	writeJSON(w, code, map[string]any{"ok": false, "reason": reason})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		fail(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return false
	}
	return true
}

func allow(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	fail(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

// upstreamFailure answers with the upstream's own status and body, or 502
// when no response arrived.
func upstreamFailure(w http.ResponseWriter, err error) {
	var ue *reservation.UpstreamError
	if errors.As(err, &ue) && ue.Status >= 400 {
		writeJSON(w, ue.Status, map[string]any{"ok": false, "status": ue.Status, "data": ue.Body})
		return
	}
	writeJSON(w, http.StatusBadGateway, map[string]any{"ok": false, "reason": "network-error", "error": err.Error()})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var password string
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body struct {
			Password string `json:"password"`
		}
		if !decode(w, r, &body) {
			return
		}
		password = body.Password
	} else {
		password = r.FormValue("password")
	}
	if err := s.Auth.Authenticate(password); err != nil {
		s.Log.Warn().Str("remote", r.RemoteAddr).Msg("login rejected")
		fail(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err := s.Auth.SetSession(w, r); err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	s.Auth.ClearSession(w)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	if r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, map[string]any{
			"config":  s.Settings.Snapshot().Redacted(),
			"running": s.Scheduler.Running(),
		})
		return
	}

	var patch map[string]any
	if !decode(w, r, &patch) {
		return
	}
	// the page posts back what GET showed; a redacted token means unchanged
	if tok, ok := patch["token"].(string); ok {
		if cur := s.Settings.Snapshot().Token; cur != "" && tok == config.RedactToken(cur) {
			delete(patch, "token")
		}
	}
	st, err := s.Settings.Update(patch)
	if err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	s.Log.Info().Int("keys", len(patch)).Msg("settings updated")
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "config": st.Redacted()})
}

// minutes accepts 90 or "90".
type minutes int

func (m *minutes) UnmarshalJSON(b []byte) error {
	n, err := strconv.Atoi(strings.Trim(string(b), `"`))
	if err != nil {
		return fmt.Errorf("duration %s: not an integer", b)
	}
	*m = minutes(n)
	return nil
}

type startRequest struct {
	Date            string    `json:"date"`
	Durations       []minutes `json:"durations"`
	IntervalSeconds int       `json:"intervalSeconds"`
	Schedule        string    `json:"schedule"`
	WindowStart     string    `json:"windowStart"`
	WindowEnd       string    `json:"windowEnd"`
}

func (b startRequest) runRequest() (booking.RunRequest, error) {
	req := booking.RunRequest{
		Date:   strings.TrimSpace(b.Date),
		Window: reservation.BookingWindow{Start: b.WindowStart, End: b.WindowEnd},
	}
	if req.Date != "" {
		if _, err := time.Parse("2006-01-02", req.Date); err != nil {
			return req, fmt.Errorf("date %q: want YYYY-MM-DD", req.Date)
		}
	}
	for _, d := range b.Durations {
		if d <= 0 {
			return req, fmt.Errorf("duration %d: must be positive", d)
		}
		req.Durations = append(req.Durations, int(d))
	}
	if err := req.Window.WithDefaults().Validate(); err != nil {
		return req, err
	}
	return req, nil
}

func (b startRequest) trigger() (scheduler.Trigger, bool) {
	if spec := strings.TrimSpace(b.Schedule); spec != "" {
		return scheduler.Trigger{Spec: spec}, true
	}
	if b.IntervalSeconds > 0 {
		return scheduler.Trigger{Every: time.Duration(b.IntervalSeconds) * time.Second}, true
	}
	return scheduler.Trigger{}, false
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var body startRequest
	if !decode(w, r, &body) {
		return
	}
	req, err := body.runRequest()
	if err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.Scheduler.Running() {
		fail(w, http.StatusBadRequest, "already-running")
		return
	}

	t, recurring := body.trigger()
	if !recurring {
		// a one-off run finishes even if the caller goes away
		sum := s.Runner.Run(context.WithoutCancel(r.Context()), "manual", req)
		writeJSON(w, http.StatusOK, map[string]any{"ok": sum.Error == "", "running": false, "lastRun": sum})
		return
	}

	job := func(ctx context.Context) { s.Runner.Run(ctx, "schedule", req) }
	if err := s.Scheduler.Start(s.bg(), job, t); err != nil {
		if errors.Is(err, internaltypes.ErrAlreadyRunning) {
			fail(w, http.StatusBadRequest, "already-running")
			return
		}
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "running": true, "schedule": s.Scheduler.Status()})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	if err := s.Scheduler.Stop(); err != nil {
		if errors.Is(err, internaltypes.ErrNotRunning) {
			writeJSON(w, http.StatusOK, map[string]any{"ok": false, "reason": "not-running"})
			return
		}
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleProxyBooking(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req reservation.ReservationRequest
	if !decode(w, r, &req) {
		return
	}
	if !s.Settings.Snapshot().HasToken() {
		fail(w, http.StatusBadRequest, "no-token")
		return
	}
	out := s.Runner.ProxyBook(r.Context(), req)
	code := http.StatusOK
	if f := out.Failure; f != nil {
		switch f.Class {
		case booking.ClassValidation:
			code = http.StatusBadRequest
		case booking.ClassUpstreamRejected:
			code = f.Status
		default:
			code = http.StatusBadGateway
		}
		if code < 400 {
			code = http.StatusBadGateway
		}
	}
	writeJSON(w, code, out)
}

type searchRequest struct {
	Date        string  `json:"date"`
	Duration    minutes `json:"duration"`
	WindowStart string  `json:"windowStart"`
	WindowEnd   string  `json:"windowEnd"`
}

func (s *Server) handleProxySearch(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var body searchRequest
	if !decode(w, r, &body) {
		return
	}
	if _, err := time.Parse("2006-01-02", body.Date); err != nil {
		fail(w, http.StatusBadRequest, "date: want YYYY-MM-DD")
		return
	}
	if body.Duration == 0 {
		body.Duration = minutes(booking.DefaultDurations[0])
	}
	win := reservation.BookingWindow{Start: body.WindowStart, End: body.WindowEnd}.WithDefaults()
	if err := win.Validate(); err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.Runner.Search(r.Context(), reservation.SearchQuery{Date: body.Date, DurationMinutes: int(body.Duration)}, win)
	if err != nil {
		upstreamFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"query":   res.Query,
		"tried":   res.Tried,
		"window":  win.String(),
		"data":    res.Raw,
		"slots":   res.Slots,
		"matched": res.Matched,
	})
}

func (s *Server) handleBookingStatus(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	guid := strings.TrimSpace(r.URL.Query().Get("guid"))
	if guid == "" {
		fail(w, http.StatusBadRequest, "missing-guid")
		return
	}
	if !s.Settings.Snapshot().HasToken() {
		fail(w, http.StatusBadRequest, "no-token")
		return
	}
	doc, err := s.Runner.Status(r.Context(), guid)
	if err != nil {
		upstreamFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": doc})
}

// handlePoll reports the current status poll. POST {guid} starts a new one.
func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	if r.Method == http.MethodPost {
		var body struct {
			GUID string `json:"guid"`
		}
		if !decode(w, r, &body) {
			return
		}
		if strings.TrimSpace(body.GUID) == "" {
			fail(w, http.StatusBadRequest, "missing-guid")
			return
		}
		s.Watch(strings.TrimSpace(body.GUID))
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "poll": s.pollState()})
}

func (s *Server) handlePollStop(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	if s.Poller != nil {
		s.Poller.Stop()
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "poll": s.pollState()})
}

func (s *Server) pollState() *reservation.PollState {
	if s.Poller == nil {
		return nil
	}
	cur := s.Poller.Current()
	if cur == nil {
		return nil
	}
	st := cur.State()
	return &st
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	if s.History == nil {
		fail(w, http.StatusNotFound, "history disabled")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := s.History.Recent(r.Context(), limit)
	if err != nil {
		s.Log.Error().Err(err).Msg("list runs")
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "runs": runs})
}

func (s *Server) handleDiag(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	d := s.Runner.Diagnose(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"ok": d.OK(), "diag": d})
}
