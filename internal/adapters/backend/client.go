// Package backend talks to the resident REST API on behalf of one portal.
//
// Each portal gets its own Client with a private cookie jar, so the session cookie
// issued by POST /jwt is sent only on that portal's requests. The circuit breaker
// is shared process-wide because it protects the backend, not a session.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	apperrors "github.com/target/towertrack-portal/internal/errors"
)

// Doer sends one HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DoerFunc adapts a function to Doer.
type DoerFunc func(req *http.Request) (*http.Response, error)

func (f DoerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

// CredentialMode selects which field POST /jwt receives.
type CredentialMode string

const (
	CredentialToken CredentialMode = "token"
	CredentialEmail CredentialMode = "email"
)

// BreakerSettings tunes the shared circuit breaker.
type BreakerSettings struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	// MinRequests and FailureRatio decide when the breaker opens.
	MinRequests  uint32
	FailureRatio float64
	Logger       *slog.Logger
}

// NewBreaker builds the process-wide breaker guarding the REST API.
func NewBreaker(s BreakerSettings) *gobreaker.CircuitBreaker {
	if s.Name == "" {
		s.Name = "resident-api"
	}
	if s.MinRequests == 0 {
		s.MinRequests = 5
	}
	if s.FailureRatio <= 0 {
		s.FailureRatio = 0.6
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.Requests >= s.MinRequests &&
				float64(c.TotalFailures)/float64(c.Requests) >= s.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// Options configures a per-portal Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	Breaker    *gobreaker.CircuitBreaker
	Transport  http.RoundTripper
	Credential CredentialMode
	Logger     *slog.Logger
}

// Client holds one portal's HTTP client and cookie jar.
type Client struct {
	base    *url.URL
	jar     *sessionJar
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	mode    CredentialMode
	logger  *slog.Logger
}

// NewClient constructs a Client with an empty cookie jar.
func NewClient(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend base URL %q", opts.BaseURL)
	}
	jar, err := newSessionJar()
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Credential == "" {
		opts.Credential = CredentialToken
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		base:    base,
		jar:     jar,
		http:    &http.Client{Jar: jar, Timeout: opts.Timeout, Transport: opts.Transport},
		breaker: opts.Breaker,
		mode:    opts.Credential,
		logger:  opts.Logger.With("component", "backend_client"),
	}, nil
}

// HasSession reports whether the jar currently holds a cookie for the backend.
func (c *Client) HasSession() bool { return len(c.jar.Cookies(c.base)) > 0 }

// Do sends req through the breaker. Transport errors and 5xx count as failures;
// any other response is returned to the caller for status mapping.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.breaker == nil {
		return c.send(req)
	}
	out, err := c.breaker.Execute(func() (any, error) { return c.send(req) })
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeNetwork, "backend unavailable")
		}
		return nil, err
	}
	return out.(*http.Response), nil
}

func (c *Client) send(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.WrapTransport(err, "backend request failed")
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		defer drain(resp)
		return nil, apperrors.New(apperrors.ErrCodeNetwork,
			fmt.Sprintf("backend %s %s: %d", req.Method, req.URL.Path, resp.StatusCode))
	}
	return resp, nil
}

// endpoint joins escaped path segments onto the base URL.
func (c *Client) endpoint(query url.Values, segments ...string) string {
	esc := make([]string, len(segments))
	for i, seg := range segments {
		esc[i] = url.PathEscape(seg)
	}
	u := c.base.JoinPath(esc...)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// newRequest builds a JSON request. A nil body sends none.
func (c *Client) newRequest(ctx context.Context, method, target string, body any) (*http.Request, error) {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s body: %w", method, err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, target, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// call sends a request via d, maps the status and decodes a JSON body into out when non-nil.
func (c *Client) call(d Doer, req *http.Request, out any) error {
	resp, err := d.Do(req)
	if err != nil {
		return err
	}
	defer drain(resp)
	if err := statusError(req, resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

func statusError(req *http.Request, resp *http.Response) error {
	code := resp.StatusCode
	if code >= 200 && code < 300 {
		return nil
	}
	msg := fmt.Sprintf("backend %s %s: %d", req.Method, req.URL.Path, code)
	switch {
	case code == http.StatusUnauthorized:
		return apperrors.Unauthenticated(msg)
	case code == http.StatusForbidden:
		return apperrors.Unauthorized(msg)
	case code == http.StatusNotFound:
		return apperrors.NotFound(msg)
	case code >= 400 && code < 500:
		return apperrors.Validation(msg)
	default:
		return apperrors.New(apperrors.ErrCodeNetwork, msg)
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
