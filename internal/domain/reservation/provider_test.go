package reservation

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestUpstreamErrorTrimsOnRuneBoundary(t *testing.T) {
	t.Parallel()
	e := &UpstreamError{Status: 409, Body: strings.Repeat("a", 199) + strings.Repeat("é", 10)}
	msg := e.Error()
	if !utf8.ValidString(msg) {
		t.Fatalf("message is not valid UTF-8: %q", msg)
	}
	if want := "upstream http 409: " + strings.Repeat("a", 199) + "..."; msg != want {
		t.Fatalf("message = %q", msg)
	}

	short := (&UpstreamError{Status: 500, Body: "boom"}).Error()
	if short != "upstream http 500: boom" {
		t.Fatalf("short message = %q", short)
	}
}
