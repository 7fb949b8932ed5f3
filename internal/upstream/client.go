// Package upstream is the HTTP client for the backend statistics API.
//
// Every call returns a Result rather than an error so callers branch on the
// outcome explicitly:
//
//	res := client.Get(ctx, "/api/db/status", nil)
//	if res.OK() {
//	    // relay res.Body
//	}
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/koustreak/dac/internal/errs"
)

// MaxBodyBytes caps how much of an upstream response is read.
const MaxBodyBytes = 8 << 20

// Result is the outcome of one upstream call.
type Result struct {
	// StatusCode is the HTTP status, zero when no response was received.
	StatusCode int
	// Body is the raw response body. It is only set when it is valid JSON.
	Body []byte
	// Err is set when the upstream was unreachable or answered with a body
	// that is not JSON.
	Err error
}

// Relayable reports whether the response can be passed through to a client
// as is, whatever its status code.
func (r Result) Relayable() bool {
	return r.Err == nil
}

// OK reports whether the upstream answered 2xx with a JSON body.
func (r Result) OK() bool {
	return r.Err == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Failure describes why the result is not OK, or nil when it is.
func (r Result) Failure() error {
	switch {
	case r.Err != nil:
		return r.Err
	case !r.OK():
		return errs.New(errs.ErrKindUpstreamUnavailable, fmt.Sprintf("upstream answered %d", r.StatusCode))
	}
	return nil
}

// Client calls the backend API at a fixed base URL.
// It is safe for concurrent use.
type Client struct {
	base *url.URL
	http *http.Client
}

// New returns a Client for baseURL using a pooled cleanhttp client with the
// given per-request timeout.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	hc := cleanhttp.DefaultPooledClient()
	hc.Timeout = timeout
	return NewWithHTTPClient(baseURL, hc)
}

// NewWithHTTPClient returns a Client that sends requests through hc.
func NewWithHTTPClient(baseURL string, hc *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid upstream base url", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("upstream base url %q is not absolute", baseURL))
	}
	return &Client{base: u, http: hc}, nil
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Get fetches path (relative to the base URL) with query. Responses are
// never served from a cache.
func (c *Client) Get(ctx context.Context, path string, query url.Values) Result {
	target := *c.base
	target.Path = c.base.Path + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return Result{Err: errs.Wrap(errs.ErrKindInvalidInput, "build upstream request", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-store")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{Err: mapError(err, "GET "+path)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes))
	if err != nil {
		return Result{StatusCode: resp.StatusCode, Err: mapError(err, "read "+path)}
	}
	if !json.Valid(body) {
		return Result{
			StatusCode: resp.StatusCode,
			Err:        errs.New(errs.ErrKindDecodeFailed, fmt.Sprintf("GET %s: %d response is not JSON", path, resp.StatusCode)),
		}
	}
	return Result{StatusCode: resp.StatusCode, Body: body}
}

// mapError classifies a transport failure. Deadlines and cancellation map
// to Timeout; everything else means the upstream is unavailable.
func mapError(err error, msg string) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}
	return errs.Wrap(errs.ErrKindUpstreamUnavailable, msg, err)
}
