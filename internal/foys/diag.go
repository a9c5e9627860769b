package foys

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"time"
)

const probeTimeout = 5 * time.Second

// Probe is one connectivity check.
type Probe struct {
	OK        bool          `json:"ok"`
	Error     string        `json:"error,omitempty"`
	Addresses []string      `json:"addresses,omitempty"`
	Status    int           `json:"status,omitempty"`
	Elapsed   time.Duration `json:"elapsedNs"`
}

// Diagnosis reports whether the API host resolves, accepts connections and
// answers HTTP.
type Diagnosis struct {
	APIBase string `json:"apiBase"`
	DNS     Probe  `json:"dns"`
	TCP     Probe  `json:"tcp"`
	HTTP    Probe  `json:"http"`
}

// OK reports whether every probe passed.
func (d Diagnosis) OK() bool { return d.DNS.OK && d.TCP.OK && d.HTTP.OK }

// Diagnose runs the DNS, TCP and HTTP HEAD probes against the API base, in
// that order. Later probes still run when an earlier one fails.
func (c *Client) Diagnose(ctx context.Context) Diagnosis {
	d := Diagnosis{APIBase: c.cfg.APIBase}
	u, err := url.Parse(c.cfg.APIBase)
	if err != nil || u.Host == "" {
		msg := "invalid apiBase"
		if err != nil {
			msg = err.Error()
		}
		d.DNS.Error, d.TCP.Error, d.HTTP.Error = msg, msg, msg
		return d
	}
	host, port := u.Hostname(), u.Port()
	if port == "" {
		port = "443"
		if u.Scheme == "http" {
			port = "80"
		}
	}

	d.DNS = timed(func(p *Probe) error {
		ctx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()
		addrs, err := net.DefaultResolver.LookupHost(ctx, host)
		p.Addresses = addrs
		return err
	})
	d.TCP = timed(func(*Probe) error {
		conn, err := (&net.Dialer{Timeout: probeTimeout}).DialContext(ctx, "tcp", net.JoinHostPort(host, port))
		if err != nil {
			return err
		}
		return conn.Close()
	})
	d.HTTP = timed(func(p *Probe) error {
		ctx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.cfg.APIBase, nil)
		if err != nil {
			return err
		}
		resp, err := c.hc.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		// any answer counts; the base path itself is not a resource
		p.Status = resp.StatusCode
		return nil
	})
	return d
}

func timed(fn func(*Probe) error) Probe {
	var p Probe
	start := time.Now()
	err := fn(&p)
	p.Elapsed = time.Since(start)
	if err != nil {
		p.Error = err.Error()
		return p
	}
	p.OK = true
	return p
}
