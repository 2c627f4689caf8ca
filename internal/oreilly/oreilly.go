// Package oreilly talks to the learning platform's search and book APIs and
// normalizes the two search endpoint generations into one page shape.
package oreilly

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackzampolin/skillshelf/internal/session"
)

const (
	// APIv1 and APIv2 select the search endpoint generation.
	APIv1 = "v1"
	APIv2 = "v2"
)

var (
	// ErrTransient marks responses worth retrying (429 and 5xx).
	ErrTransient = errors.New("transient remote error")
	// ErrNotFound marks permanently missing topics and books.
	ErrNotFound = errors.New("not found")
)

// Client issues search and book API calls over the shared session.
type Client struct {
	session *session.Client
	logger  *slog.Logger
	api     string
}

// New creates a client using the given search API generation.
func New(sess *session.Client, logger *slog.Logger, api string) *Client {
	if api != APIv1 {
		api = APIv2
	}
	return &Client{
		session: sess,
		logger:  logger,
		api:     api,
	}
}

// API returns the configured search API generation.
func (c *Client) API() string {
	return c.api
}

// Session returns the underlying session client for raw content and asset
// fetches outside the JSON API surface.
func (c *Client) Session() *session.Client {
	return c.session
}

// mapStatus converts a session status error into the package error taxonomy.
func mapStatus(err error, what string) error {
	switch code := session.StatusCode(err); {
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	case code == http.StatusTooManyRequests || code >= 500:
		return fmt.Errorf("%w: %s: status %d", ErrTransient, what, code)
	default:
		return err
	}
}
