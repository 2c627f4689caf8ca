package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackzampolin/skillshelf/internal/config"
	"github.com/jackzampolin/skillshelf/internal/cookies"
)

func testClient(t *testing.T, baseURL string) (*Client, *cookies.Store) {
	t.Helper()

	store := cookies.New(filepath.Join(t.TempDir(), "cookies.json"))
	store.Set("orm-jwt", "token")

	cfg := config.HTTPCfg{
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    10 * time.Second,
		UserAgent:      "test-agent",
	}
	client, err := New(cfg, baseURL, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return client, store
}

func TestGet(t *testing.T) {
	t.Run("sends session headers and cookies", func(t *testing.T) {
		var gotUA, gotCookie string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotUA = r.Header.Get("User-Agent")
			gotCookie = r.Header.Get("Cookie")
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		client, _ := testClient(t, srv.URL)
		resp, err := client.Get(context.Background(), "/anything")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		resp.Body.Close()

		if gotUA != "test-agent" {
			t.Errorf("User-Agent = %q, want %q", gotUA, "test-agent")
		}
		if gotCookie != "orm-jwt=token" {
			t.Errorf("Cookie = %q, want %q", gotCookie, "orm-jwt=token")
		}
	})

	t.Run("follows redirects and captures cookies on each hop", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Set-Cookie", "hop1=a; Max-Age=100.5")
			http.Redirect(w, r, "/end", http.StatusFound)
		})
		mux.HandleFunc("/end", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Set-Cookie", "hop2=b; Max-Age=200.5")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("done"))
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()

		client, store := testClient(t, srv.URL)
		resp, err := client.Get(context.Background(), "/start")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if string(body) != "done" {
			t.Errorf("body = %q, want %q", body, "done")
		}
		if v, _ := store.Get("hop1"); v != "a" {
			t.Errorf("hop1 cookie = %q, want %q", v, "a")
		}
		if v, _ := store.Get("hop2"); v != "b" {
			t.Errorf("hop2 cookie = %q, want %q", v, "b")
		}
	})

	t.Run("gives up on redirect loops", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, r.URL.Path, http.StatusFound)
		}))
		defer srv.Close()

		client, _ := testClient(t, srv.URL)
		if _, err := client.Get(context.Background(), "/loop"); err == nil {
			t.Error("Get() should fail on a redirect loop")
		}
	})
}

func TestCookieUpdateCallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Set-Cookie", "orm-jwt=fresh; Max-Age=1209599.932")
		w.Header().Add("Set-Cookie", "static=1; Max-Age=86400")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, store := testClient(t, srv.URL)

	var callbackApplied int
	client.OnCookieUpdate(func(applied int) { callbackApplied += applied })

	resp, err := client.Get(context.Background(), "/")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()

	// Only the fractional Max-Age cookie counts.
	if callbackApplied != 1 {
		t.Errorf("callback applied = %d, want 1", callbackApplied)
	}
	if v, _ := store.Get("orm-jwt"); v != "fresh" {
		t.Errorf("orm-jwt = %q, want %q", v, "fresh")
	}
	if _, ok := store.Get("static"); ok {
		t.Error("integer Max-Age cookie should not be stored")
	}
}

func TestGetJSON(t *testing.T) {
	t.Run("decodes 200 responses", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"total": 42}`))
		}))
		defer srv.Close()

		client, _ := testClient(t, srv.URL)
		var out struct {
			Total int `json:"total"`
		}
		if err := client.GetJSON(context.Background(), "/api", &out); err != nil {
			t.Fatalf("GetJSON() error = %v", err)
		}
		if out.Total != 42 {
			t.Errorf("total = %d, want 42", out.Total)
		}
	})

	t.Run("non-200 returns StatusError", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		client, _ := testClient(t, srv.URL)
		var out map[string]any
		err := client.GetJSON(context.Background(), "/api", &out)
		if !IsStatus(err, http.StatusTooManyRequests) {
			t.Errorf("GetJSON() error = %v, want StatusError 429", err)
		}
		if StatusCode(err) != http.StatusTooManyRequests {
			t.Errorf("StatusCode() = %d, want 429", StatusCode(err))
		}
	})
}

func TestGetBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte{0xFF, 0xD8, 0xFF})
	}))
	defer srv.Close()

	client, _ := testClient(t, srv.URL)
	data, err := client.GetBytes(context.Background(), "/image.jpg")
	if err != nil {
		t.Fatalf("GetBytes() error = %v", err)
	}
	if len(data) != 3 || data[0] != 0xFF {
		t.Errorf("GetBytes() = %v, want JPEG magic", data)
	}
}

func TestCheckAuth(t *testing.T) {
	t.Run("authenticated session passes", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/profile/" {
				t.Errorf("probe path = %q, want /profile/", r.URL.Path)
			}
			w.Write([]byte(`{"user_type":"Member"}`))
		}))
		defer srv.Close()

		client, _ := testClient(t, srv.URL)
		if err := client.CheckAuth(context.Background()); err != nil {
			t.Errorf("CheckAuth() error = %v", err)
		}
	})

	t.Run("redirect to login fails", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/login", http.StatusFound)
		}))
		defer srv.Close()

		client, _ := testClient(t, srv.URL)
		err := client.CheckAuth(context.Background())
		if !errors.Is(err, ErrNotAuthenticated) {
			t.Errorf("CheckAuth() error = %v, want ErrNotAuthenticated", err)
		}
	})

	t.Run("expired subscription is distinguished", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"user_type":"Expired"}`))
		}))
		defer srv.Close()

		client, _ := testClient(t, srv.URL)
		err := client.CheckAuth(context.Background())
		if !errors.Is(err, ErrAuthExpired) {
			t.Errorf("CheckAuth() error = %v, want ErrAuthExpired", err)
		}
	})
}

func TestResolve(t *testing.T) {
	client, _ := testClient(t, "https://learning.oreilly.com")

	tests := []struct {
		ref  string
		want string
	}{
		{"/api/v2/search/", "https://learning.oreilly.com/api/v2/search/"},
		{"https://other.example.com/x", "https://other.example.com/x"},
		{"relative/path", "https://learning.oreilly.com/relative/path"},
	}
	for _, tt := range tests {
		if got := client.Resolve(tt.ref); got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.ref, got, tt.want)
		}
	}
}
