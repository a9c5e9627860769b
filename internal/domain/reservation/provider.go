package reservation

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// SearchQuery asks the upstream for availability on one date for one
// playing time.
type SearchQuery struct {
	Date            string // YYYY-MM-DD
	DurationMinutes int
}

// Response is a structured upstream reply.
type Response struct {
	Status int
	Body   RawDocument
}

// UpstreamError reports a non-success HTTP status together with the body the
// upstream sent. Any other transport error is a network failure.
type UpstreamError struct {
	Status int
	Body   RawDocument
}

func (e *UpstreamError) Error() string {
	body := fmt.Sprint(e.Body)
	if len(body) > 200 {
		cut := 200
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut] + "..."
	}
	return fmt.Sprintf("upstream http %d: %s", e.Status, strings.TrimSpace(body))
}
