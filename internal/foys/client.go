// Package foys is the HTTP transport for the court booking API.
package foys

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/example/court-autobook/internal/domain/reservation"
)

// DefaultOrigin is sent as Origin and used to build the Referer.
const DefaultOrigin = "https://www.padelpowers.com"

// maxBody caps how much of an upstream response is read.
const maxBody = 8 << 20

// Config carries the upstream identifiers and credentials for one client.
type Config struct {
	APIBase           string
	Token             string
	OrganisationID    string
	FederationID      string
	LocationID        string
	ReservationTypeID int
	Origin            string
}

// Client implements booking.Transport against the members API.
type Client struct {
	hc  *http.Client
	cfg Config
}

// New returns a client whose requests time out after timeout. A zero timeout
// means 10s.
func New(cfg Config, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if cfg.Origin == "" {
		cfg.Origin = DefaultOrigin
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	return &Client{
		hc:  &http.Client{Timeout: timeout},
		cfg: cfg,
	}
}

// WithHTTPClient swaps the underlying client. Used by tests and the proxy path.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	cp := *c
	cp.hc = hc
	return &cp
}

// PublicBase is the API base with the members segment replaced by the public
// one; availability search lives there.
func (c *Client) PublicBase() string {
	return strings.Replace(c.cfg.APIBase, "/members/api/v1", "/public/api/v1", 1)
}

// SearchURL builds the availability search URL for q.
func (c *Client) SearchURL(q reservation.SearchQuery) string {
	// playingTimes[] must go out with literal brackets.
	return fmt.Sprintf("%s/locations/search?reservationTypeId=%d&locationId=%s&playingTimes[]=%d&date=%s",
		c.PublicBase(),
		c.cfg.ReservationTypeID,
		url.QueryEscape(c.cfg.LocationID),
		q.DurationMinutes,
		url.QueryEscape(q.Date+"T00:00:00.000Z"),
	)
}

// SearchVariants lists the search URLs SearchWithFallback tries, in order:
// SearchURL first, then the same query with playingTimes unbracketed or
// omitted, then the availability endpoint on the API base.
func (c *Client) SearchVariants(q reservation.SearchQuery) []string {
	date := url.QueryEscape(q.Date + "T00:00:00.000Z")
	common := fmt.Sprintf("reservationTypeId=%d&locationId=%s", c.cfg.ReservationTypeID, url.QueryEscape(c.cfg.LocationID))
	search := c.PublicBase() + "/locations/search?" + common
	avail := c.cfg.APIBase + "/availability?" + common
	return []string{
		c.SearchURL(q),
		fmt.Sprintf("%s&playingTimes=%d&date=%s", search, q.DurationMinutes, date),
		fmt.Sprintf("%s&date=%s", search, date),
		fmt.Sprintf("%s&playingTimes[]=%d&date=%s", avail, q.DurationMinutes, date),
		fmt.Sprintf("%s&playingTimes=%d&date=%s", avail, q.DurationMinutes, date),
	}
}

func (c *Client) Search(ctx context.Context, q reservation.SearchQuery) (reservation.RawDocument, error) {
	if q.Date == "" {
		return nil, errors.New("search: date is required")
	}
	return c.get(ctx, c.SearchURL(q))
}

// SearchWithFallback tries each of SearchVariants until one answers 2xx and
// returns its body with the URL that worked. When all fail the last error is
// returned.
func (c *Client) SearchWithFallback(ctx context.Context, q reservation.SearchQuery) (reservation.RawDocument, string, error) {
	if q.Date == "" {
		return nil, "", errors.New("search: date is required")
	}
	var last error
	for _, u := range c.SearchVariants(q) {
		doc, err := c.get(ctx, u)
		if err == nil {
			return doc, u, nil
		}
		if ctx.Err() != nil {
			return nil, "", err
		}
		last = err
	}
	return nil, "", last
}

func (c *Client) get(ctx context.Context, rawURL string) (reservation.RawDocument, error) {
	status, body, err := c.do(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if !ok(status) {
		return nil, &reservation.UpstreamError{Status: status, Body: body}
	}
	return body, nil
}

func (c *Client) Submit(ctx context.Context, req reservation.ReservationRequest) (reservation.Response, error) {
	jb, err := json.Marshal(req)
	if err != nil {
		return reservation.Response{}, err
	}
	status, body, err := c.do(ctx, http.MethodPost, c.cfg.APIBase+"/bookings", jb)
	if err != nil {
		return reservation.Response{}, err
	}
	if !ok(status) {
		return reservation.Response{}, &reservation.UpstreamError{Status: status, Body: body}
	}
	return reservation.Response{Status: status, Body: body}, nil
}

func (c *Client) Status(ctx context.Context, guid string) (reservation.RawDocument, error) {
	guid = strings.TrimSpace(guid)
	if guid == "" {
		return nil, errors.New("status: guid is required")
	}
	return c.get(ctx, c.cfg.APIBase+"/bookings/"+url.PathEscape(guid))
}

func ok(status int) bool { return status >= 200 && status < 300 }

func (c *Client) do(ctx context.Context, method, rawURL string, body []byte) (int, reservation.RawDocument, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, rd)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	req.Header.Set("x-organisationid", c.cfg.OrganisationID)
	req.Header.Set("x-federationid", c.cfg.FederationID)
	req.Header.Set("Origin", c.cfg.Origin)
	req.Header.Set("Referer", c.cfg.Origin+"/en/booking/court-booking/reservation?locationId="+url.QueryEscape(c.cfg.LocationID))

	res, err := c.hc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()
	b, err := io.ReadAll(io.LimitReader(res.Body, maxBody))
	if err != nil {
		return res.StatusCode, nil, err
	}
	return res.StatusCode, decodeBody(b), nil
}

// decodeBody parses JSON with numbers kept as json.Number. Anything that is
// not JSON comes back as trimmed text; an empty body is nil.
func decodeBody(b []byte) reservation.RawDocument {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return string(b)
	}
	return v
}
