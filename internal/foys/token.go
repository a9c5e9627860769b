package foys

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenInfo is what can be read from a bearer token without its signing key.
type TokenInfo struct {
	Subject   string         `json:"subject,omitempty"`
	Issuer    string         `json:"issuer,omitempty"`
	ExpiresAt time.Time      `json:"expiresAt,omitempty"`
	Claims    map[string]any `json:"claims"`
}

// Expired reports whether the token has an expiry at or before now.
func (ti TokenInfo) Expired(now time.Time) bool {
	return !ti.ExpiresAt.IsZero() && !now.Before(ti.ExpiresAt)
}

// InspectToken decodes the claims of a JWT. The signature is NOT verified;
// this is for operator diagnostics only.
func InspectToken(raw string) (TokenInfo, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "Bearer "))
	if raw == "" {
		return TokenInfo{}, errors.New("empty token")
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return TokenInfo{}, fmt.Errorf("decode token: %w", err)
	}
	ti := TokenInfo{Claims: claims}
	ti.Subject, _ = claims.GetSubject()
	ti.Issuer, _ = claims.GetIssuer()
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		ti.ExpiresAt = exp.Time
	}
	return ti, nil
}
