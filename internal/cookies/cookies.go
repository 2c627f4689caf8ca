// Package cookies persists the authenticated session's cookie bundle.
//
// The remote service keeps long-lived sessions alive by reissuing session
// cookies on ordinary responses; the bundle on disk must track those updates
// or every later run starts with stale credentials.
package cookies

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrNoCredentials is returned when the cookie bundle is missing or unreadable.
var ErrNoCredentials = errors.New("no credentials: cookie bundle missing or malformed")

// floatMaxAgePattern matches the non-standard fractional Max-Age the service
// emits on refreshed session cookies (e.g. "Max-Age=1209599.932"). Only
// Set-Cookie headers of this shape carry session material worth persisting.
var floatMaxAgePattern = regexp.MustCompile(`(?i)(max-age=\d*\.\d*)`)

// Store holds the cookie bundle and serializes access to it.
type Store struct {
	mu        sync.RWMutex
	path      string
	values    map[string]string
	updatedAt time.Time
}

// Load reads the cookie bundle from path.
// A missing or malformed file returns ErrNoCredentials.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoCredentials, path)
	}

	values := make(map[string]string)
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNoCredentials, path, err)
	}

	return &Store{
		path:      path,
		values:    values,
		updatedAt: time.Now(),
	}, nil
}

// New creates an empty store that will persist to path.
func New(path string) *Store {
	return &Store{
		path:      path,
		values:    make(map[string]string),
		updatedAt: time.Now(),
	}
}

// Save writes the bundle to disk atomically (temp file + rename).
func (s *Store) Save() error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s.values, "", "  ")
	path := s.path
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal cookie bundle: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".cookies-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp cookie file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write cookie bundle: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp cookie file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to chmod cookie file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace cookie file: %w", err)
	}
	return nil
}

// ApplyHeader inspects one raw Set-Cookie header value and, when it carries a
// fractional Max-Age, stores the name=value pair. Malformed headers are
// ignored. Returns true when the bundle was updated.
func (s *Store) ApplyHeader(setCookie string) bool {
	if !floatMaxAgePattern.MatchString(setCookie) {
		return false
	}

	pair := setCookie
	if i := strings.Index(pair, ";"); i >= 0 {
		pair = pair[:i]
	}
	name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
	if !ok || name == "" {
		return false
	}

	s.mu.Lock()
	s.values[name] = value
	s.updatedAt = time.Now()
	s.mu.Unlock()
	return true
}

// Set stores a cookie directly.
func (s *Store) Set(name, value string) {
	s.mu.Lock()
	s.values[name] = value
	s.updatedAt = time.Now()
	s.mu.Unlock()
}

// Get returns a single cookie value.
func (s *Store) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

// Snapshot returns a copy of the bundle.
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Header renders the bundle as a Cookie request header value.
// Keys are sorted so the header is deterministic.
func (s *Store) Header() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(s.values[k])
	}
	return b.String()
}

// Len returns the number of cookies in the bundle.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// UpdatedAt returns the time of the last mutation.
func (s *Store) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}
