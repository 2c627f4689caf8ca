// Package session maintains the single authenticated HTTP session shared by
// every controller. Redirects are never followed automatically: each hop is
// issued explicitly so its Set-Cookie headers reach the credential store, and
// auth probes can inspect the first response of a redirect chain.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/jackzampolin/skillshelf/internal/config"
	"github.com/jackzampolin/skillshelf/internal/cookies"
)

const (
	profilePath  = "/profile/"
	maxRedirects = 10

	// expiredMarker appears in the profile payload when the account's
	// subscription has lapsed even though the cookies still authenticate.
	expiredMarker = `"user_type":"Expired"`
)

var (
	// ErrNotAuthenticated indicates the session cookies no longer grant access.
	ErrNotAuthenticated = errors.New("session not authenticated")
	// ErrAuthExpired indicates the account subscription has expired.
	ErrAuthExpired = errors.New("account subscription expired")
)

// StatusError reports a non-200 response. Callers map codes onto their own
// error taxonomy (transient vs permanent).
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.URL)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// StatusCode extracts the status code from err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// Client is the shared authenticated HTTP client.
type Client struct {
	http     *http.Client
	base     *url.URL
	store    *cookies.Store
	logger   *slog.Logger
	headers  map[string]string
	onUpdate func(applied int)
}

// New creates a session client backed by the given cookie store.
func New(cfg config.HTTPCfg, baseURL string, store *cookies.Store, logger *slog.Logger) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", baseURL, err)
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout,
		}).DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ReadTimeout,
	}

	return &Client{
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.ReadTimeout,
			// Redirects are followed manually so every hop's cookies are seen.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		base:   base,
		store:  store,
		logger: logger,
		headers: map[string]string{
			"User-Agent":      cfg.UserAgent,
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.5",
			"Connection":      "keep-alive",
		},
	}, nil
}

// OnCookieUpdate registers a callback invoked after any response refreshes
// session cookies, with the number of cookies applied.
func (c *Client) OnCookieUpdate(fn func(applied int)) {
	c.onUpdate = fn
}

// Resolve joins a path or absolute URL against the session base.
func (c *Client) Resolve(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return c.base.ResolveReference(u).String()
}

// do issues one request without following redirects, applying session headers
// and the cookie bundle, and feeding response cookies back to the store.
func (c *Client) do(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if h := c.store.Header(); h != "" {
		req.Header.Set("Cookie", h)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}

	applied := 0
	for _, sc := range resp.Header.Values("Set-Cookie") {
		if c.store.ApplyHeader(sc) {
			applied++
		}
	}
	if applied > 0 {
		c.logger.Debug("session cookies refreshed", "applied", applied, "url", rawURL)
		if c.onUpdate != nil {
			c.onUpdate(applied)
		}
	}

	return resp, nil
}

// Get fetches rawURL, following redirects manually up to maxRedirects hops.
// The caller owns the response body.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	current := c.Resolve(rawURL)
	for hop := 0; ; hop++ {
		resp, err := c.do(ctx, current)
		if err != nil {
			return nil, err
		}

		if !isRedirect(resp.StatusCode) {
			return resp, nil
		}

		loc := resp.Header.Get("Location")
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if loc == "" || hop >= maxRedirects {
			return nil, fmt.Errorf("redirect loop fetching %s", rawURL)
		}
		next, err := url.Parse(loc)
		if err != nil {
			return nil, fmt.Errorf("bad redirect location %q: %w", loc, err)
		}
		base, _ := url.Parse(current)
		current = base.ResolveReference(next).String()
	}
}

// GetNoRedirect fetches rawURL and returns the first response of any
// redirect chain unread.
func (c *Client) GetNoRedirect(ctx context.Context, rawURL string) (*http.Response, error) {
	return c.do(ctx, c.Resolve(rawURL))
}

// GetJSON fetches rawURL and decodes a 200 response into v.
// Non-200 responses return a *StatusError.
func (c *Client) GetJSON(ctx context.Context, rawURL string, v any) error {
	resp, err := c.Get(ctx, rawURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return &StatusError{Code: resp.StatusCode, URL: rawURL}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response from %s: %w", rawURL, err)
	}
	return nil
}

// GetStream fetches rawURL and returns the body of a 200 response.
// The caller must close the returned reader.
func (c *Client) GetStream(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	resp, err := c.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, URL: rawURL}
	}
	return resp.Body, nil
}

// GetBytes fetches rawURL and returns the full body of a 200 response.
func (c *Client) GetBytes(ctx context.Context, rawURL string) ([]byte, error) {
	body, err := c.GetStream(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", rawURL, err)
	}
	return data, nil
}

// CheckAuth probes the profile page without following redirects. A redirect
// or non-200 status means the cookies no longer authenticate; a 200 whose
// body flags an expired subscription returns ErrAuthExpired.
func (c *Client) CheckAuth(ctx context.Context) error {
	resp, err := c.GetNoRedirect(ctx, profilePath)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if isRedirect(resp.StatusCode) || resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: profile returned %d", ErrNotAuthenticated, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read profile response: %w", err)
	}
	if strings.Contains(string(body), expiredMarker) {
		return ErrAuthExpired
	}

	c.logger.Debug("session authenticated")
	return nil
}

func isRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}
