// Package booking turns candidate slots into reservations.
//
// A Submitter makes one attempt for one slot. A Retrier wraps a Submitter
// with bounded exponential backoff for the operator proxy path. An
// Orchestrator drives search, extraction, window filtering and submission
// across durations and stops at the first success. Nothing here logs; every
// result is returned as data.
package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/court-autobook/internal/domain/reservation"
)

// Transport is the upstream scheduling service.
//
// Errors of type *reservation.UpstreamError mean the service answered with a
// non-success status. Any other error is a network failure.
type Transport interface {
	Search(ctx context.Context, q reservation.SearchQuery) (reservation.RawDocument, error)
	Submit(ctx context.Context, req reservation.ReservationRequest) (reservation.Response, error)
	Status(ctx context.Context, guid string) (reservation.RawDocument, error)
}

// FailureClass partitions submission failures.
type FailureClass string

const (
	ClassValidation       FailureClass = "validation"
	ClassUpstreamRejected FailureClass = "upstream-rejected"
	ClassNetworkFailure   FailureClass = "network-failure"
)

// Failure describes why a step did not succeed. Status and Body are only set
// for upstream rejections.
type Failure struct {
	Class   FailureClass            `json:"class"`
	Status  int                     `json:"status,omitempty"`
	Body    reservation.RawDocument `json:"body,omitempty"`
	Message string                  `json:"message"`
}

func (f *Failure) Error() string {
	if f.Class == ClassUpstreamRejected {
		return fmt.Sprintf("%s: http %d", f.Class, f.Status)
	}
	return fmt.Sprintf("%s: %s", f.Class, f.Message)
}

// classify maps a transport error to a failure.
func classify(err error) *Failure {
	var ue *reservation.UpstreamError
	if errors.As(err, &ue) {
		return &Failure{Class: ClassUpstreamRejected, Status: ue.Status, Body: ue.Body, Message: ue.Error()}
	}
	return &Failure{Class: ClassNetworkFailure, Message: err.Error()}
}

func invalid(format string, args ...any) *Failure {
	return &Failure{Class: ClassValidation, Message: fmt.Sprintf(format, args...)}
}

// Outcome is the result of one submission (or one retried submission).
type Outcome struct {
	OK      bool                    `json:"ok"`
	Status  int                     `json:"status,omitempty"`
	Payload reservation.RawDocument `json:"payload,omitempty"`
	// Reference is the upstream reservation guid, empty when the response
	// carried none.
	Reference  string `json:"reference,omitempty"`
	BookingURL string `json:"bookingUrl,omitempty"`
	// TimeOutAt is the payment deadline reported by the upstream, verbatim.
	TimeOutAt string   `json:"timeOutAt,omitempty"`
	Attempts  int      `json:"attempts"`
	Failure   *Failure `json:"failure,omitempty"`
}

func failed(f *Failure) Outcome {
	return Outcome{Failure: f, Status: f.Status, Payload: f.Body}
}
