package reservation

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Default acceptable time-of-day window.
const (
	DefaultWindowStart = "18:30"
	DefaultWindowEnd   = "22:00"
)

// localLayout is the minute-precision wall-clock format the upstream expects
// in reservation requests.
const localLayout = "2006-01-02T15:04"

var parseLayouts = []string{
	localLayout,
	"2006-01-02T15:04Z07:00",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseLocal parses a slot timestamp. The wall clock is kept exactly as
// written: a zone suffix becomes the value's location, no conversion happens.
func ParseLocal(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range parseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable timestamp %q", s)
}

// FormatLocal renders t as YYYY-MM-DDTHH:MM with no seconds or zone.
func FormatLocal(t time.Time) string {
	return t.Format(localLayout)
}

// BookingWindow is a daily wall-clock interval, "HH:MM" to "HH:MM".
type BookingWindow struct {
	Start string `json:"windowStart"`
	End   string `json:"windowEnd"`
}

// DefaultWindow returns the 18:30-22:00 window.
func DefaultWindow() BookingWindow {
	return BookingWindow{Start: DefaultWindowStart, End: DefaultWindowEnd}
}

// WithDefaults fills empty bounds from the default window.
func (w BookingWindow) WithDefaults() BookingWindow {
	if strings.TrimSpace(w.Start) == "" {
		w.Start = DefaultWindowStart
	}
	if strings.TrimSpace(w.End) == "" {
		w.End = DefaultWindowEnd
	}
	return w
}

func (w BookingWindow) Validate() error {
	sh, sm, ok := parseHHMM(w.Start)
	if !ok {
		return fmt.Errorf("invalid window start %q (want HH:MM)", w.Start)
	}
	eh, em, ok := parseHHMM(w.End)
	if !ok {
		return fmt.Errorf("invalid window end %q (want HH:MM)", w.End)
	}
	if eh*60+em <= sh*60+sm {
		return fmt.Errorf("window end %s must be after start %s", w.End, w.Start)
	}
	return nil
}

// Contains reports whether a slot starting at start and lasting minutes fits.
func (w BookingWindow) Contains(start time.Time, minutes int) bool {
	return Fits(start, w.Start, w.End, minutes)
}

func (w BookingWindow) String() string { return w.Start + "-" + w.End }

// Fits reports whether [start, start+durationMinutes) lies inside the window
// placed on start's own calendar day. Both bounds are inclusive on equality.
// Seconds of start are dropped first. Malformed bounds never fit.
func Fits(start time.Time, windowStart, windowEnd string, durationMinutes int) bool {
	if start.IsZero() || durationMinutes < 0 {
		return false
	}
	wsH, wsM, ok := parseHHMM(windowStart)
	if !ok {
		return false
	}
	weH, weM, ok := parseHHMM(windowEnd)
	if !ok {
		return false
	}
	y, mo, d := start.Date()
	loc := start.Location()
	start = time.Date(y, mo, d, start.Hour(), start.Minute(), 0, 0, loc)

	ws := time.Date(y, mo, d, wsH, wsM, 0, 0, loc)
	we := time.Date(y, mo, d, weH, weM, 0, 0, loc)
	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	return !start.Before(ws) && !end.After(we)
}

// parseHHMM accepts 00:00 through 24:00.
func parseHHMM(s string) (int, int, bool) {
	s = strings.TrimSpace(s)
	hs, ms, found := strings.Cut(s, ":")
	if !found || len(ms) != 2 || len(hs) == 0 || len(hs) > 2 {
		return 0, 0, false
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h < 0 || h > 24 {
		return 0, 0, false
	}
	m, err := strconv.Atoi(ms)
	if err != nil || m < 0 || m > 59 {
		return 0, 0, false
	}
	if h == 24 && m != 0 {
		return 0, 0, false
	}
	return h, m, true
}
