package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Settings are the operator-editable upstream identifiers and credentials.
// They live in the settings file and are read once at the start of each run.
type Settings struct {
	Token             string `json:"token"`
	OrganisationID    string `json:"organisationId"`
	FederationID      string `json:"federationId"`
	LocationID        string `json:"locationId"`
	ReservationTypeID int    `json:"reservationTypeId"`
	APIBase           string `json:"apiBase"`
	BookingURLBase    string `json:"bookingUrlBase"`
	Origin            string `json:"origin"`
}

func DefaultSettings() Settings {
	return Settings{
		OrganisationID:    "48c8d621-a469-4645-17ee-08db9da35083",
		FederationID:      "30c6ef06-0a88-4ed7-a0ba-23352869c8a1",
		LocationID:        "205c6c05-c583-4d1f-b10d-1b3c3ff47bac",
		ReservationTypeID: 85,
		APIBase:           "https://api.foys.io/court-booking/members/api/v1",
		BookingURLBase:    "https://www.padelpowers.com/en/booking/court-booking/booking/",
		Origin:            "https://www.padelpowers.com",
	}
}

func (s Settings) Validate() error {
	if strings.TrimSpace(s.APIBase) == "" {
		return fmt.Errorf("apiBase is required")
	}
	if !strings.HasPrefix(s.APIBase, "http://") && !strings.HasPrefix(s.APIBase, "https://") {
		return fmt.Errorf("apiBase must be an http(s) URL")
	}
	if s.ReservationTypeID <= 0 {
		return fmt.Errorf("reservationTypeId must be positive")
	}
	if strings.TrimSpace(s.LocationID) == "" {
		return fmt.Errorf("locationId is required")
	}
	return nil
}

// HasToken reports whether a bearer token is configured.
func (s Settings) HasToken() bool { return strings.TrimSpace(s.Token) != "" }

// Redacted hides the token for display.
func (s Settings) Redacted() Settings {
	s.Token = RedactToken(s.Token)
	return s
}

// RedactToken keeps the first and last four characters of long tokens.
func RedactToken(tok string) string {
	tok = strings.TrimSpace(tok)
	switch {
	case tok == "":
		return ""
	case len(tok) <= 12:
		return "****"
	default:
		return tok[:4] + "…" + tok[len(tok)-4:]
	}
}

// PatchFromPairs turns key=value arguments into an Update patch.
func PatchFromPairs(pairs []string) (map[string]any, error) {
	patch := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", p)
		}
		if k == "reservationTypeId" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("reservationTypeId: %w", err)
			}
			patch[k] = n
			continue
		}
		patch[k] = strings.TrimSpace(v)
	}
	return patch, nil
}
