package reservation

import "time"

// RawDocument is an untyped search or status response: nested map[string]any
// and []any values with scalar leaves. It may share substructure, so walkers
// must treat it as a graph.
type RawDocument = any

// DefaultDurationMinutes is assumed when a slot does not say how long it is.
const DefaultDurationMinutes = 60

// CandidateSlot is one bookable start on one inventory item.
type CandidateSlot struct {
	InventoryID     string `json:"inventoryItemId"`
	Start           string `json:"start"`
	DurationMinutes int    `json:"duration"`
	// Available is nil when the upstream record carries no availability flag.
	Available *bool `json:"available,omitempty"`

	Raw map[string]any `json:"-"`
}

// StartTime parses Start as a local wall-clock timestamp.
func (s CandidateSlot) StartTime() (time.Time, error) {
	return ParseLocal(s.Start)
}

// ReservationItem names the inventory item to reserve.
type ReservationItem struct {
	InventoryItemID int `json:"inventoryItemId"`
}

// ReservationRequest is the body POSTed to create a booking.
type ReservationRequest struct {
	ReservationTypeID int               `json:"reservationTypeId"`
	StartDateTime     string            `json:"startDateTime"`
	EndDateTime       string            `json:"endDateTime"`
	Reservations      []ReservationItem `json:"reservations"`
}

// NewReservationRequest builds a request for [start, start+minutes).
func NewReservationRequest(typeID, inventoryItemID int, start time.Time, minutes int) ReservationRequest {
	end := start.Add(time.Duration(minutes) * time.Minute)
	return ReservationRequest{
		ReservationTypeID: typeID,
		StartDateTime:     FormatLocal(start),
		EndDateTime:       FormatLocal(end),
		Reservations:      []ReservationItem{{InventoryItemID: inventoryItemID}},
	}
}

// PollStatus is the coarse lifecycle state tracked by the status poller.
type PollStatus string

const (
	PollPending  PollStatus = "pending"
	PollTerminal PollStatus = "terminal"
	PollUnknown  PollStatus = "unknown"
)

// PollState describes one status poll.
type PollState struct {
	GUID       string     `json:"guid"`
	LastStatus PollStatus `json:"lastStatus"`
	// Status is the raw upstream status text of the last successful query.
	Status  string    `json:"status,omitempty"`
	Active  bool      `json:"active"`
	Queries int       `json:"queries"`
	Error   string    `json:"error,omitempty"`
	Updated time.Time `json:"updated"`
}
