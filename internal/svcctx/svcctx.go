// Package svcctx provides service context for dependency injection via context.
// This package is separate from the controllers to avoid import cycles.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/jackzampolin/skillshelf/internal/config"
	"github.com/jackzampolin/skillshelf/internal/cookies"
	"github.com/jackzampolin/skillshelf/internal/home"
	"github.com/jackzampolin/skillshelf/internal/progress"
	"github.com/jackzampolin/skillshelf/internal/session"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	Logger  *slog.Logger
	Home    *home.Dir
	Config  *config.Config
	Cookies *cookies.Store
	Session *session.Client
	Tracker *progress.Tracker
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil {
		return s.Logger
	}
	return nil
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}

// ConfigFrom extracts the loaded configuration from context.
func ConfigFrom(ctx context.Context) *config.Config {
	if s := ServicesFrom(ctx); s != nil {
		return s.Config
	}
	return nil
}

// CookiesFrom extracts the credential store from context.
func CookiesFrom(ctx context.Context) *cookies.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.Cookies
	}
	return nil
}

// SessionFrom extracts the shared HTTP session from context.
func SessionFrom(ctx context.Context) *session.Client {
	if s := ServicesFrom(ctx); s != nil {
		return s.Session
	}
	return nil
}

// TrackerFrom extracts the progress tracker from context.
func TrackerFrom(ctx context.Context) *progress.Tracker {
	if s := ServicesFrom(ctx); s != nil {
		return s.Tracker
	}
	return nil
}
