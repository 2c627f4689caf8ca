package cookies

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	t.Run("loads valid bundle", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cookies.json")
		if err := os.WriteFile(path, []byte(`{"orm-jwt":"abc","sessionid":"xyz"}`), 0o600); err != nil {
			t.Fatalf("failed to write fixture: %v", err)
		}

		store, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got, _ := store.Get("orm-jwt"); got != "abc" {
			t.Errorf("Get(orm-jwt) = %q, want %q", got, "abc")
		}
		if store.Len() != 2 {
			t.Errorf("Len() = %d, want 2", store.Len())
		}
	})

	t.Run("missing file returns ErrNoCredentials", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
		if !errors.Is(err, ErrNoCredentials) {
			t.Errorf("Load() error = %v, want ErrNoCredentials", err)
		}
	})

	t.Run("malformed file returns ErrNoCredentials", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cookies.json")
		if err := os.WriteFile(path, []byte(`not json`), 0o600); err != nil {
			t.Fatalf("failed to write fixture: %v", err)
		}

		_, err := Load(path)
		if !errors.Is(err, ErrNoCredentials) {
			t.Errorf("Load() error = %v, want ErrNoCredentials", err)
		}
	})
}

func TestApplyHeader(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		wantApply bool
		wantKey   string
		wantValue string
	}{
		{
			name:      "fractional max-age is applied",
			header:    "orm-jwt=newtoken; Path=/; Max-Age=1209599.932; Secure",
			wantApply: true,
			wantKey:   "orm-jwt",
			wantValue: "newtoken",
		},
		{
			name:      "lowercase max-age is applied",
			header:    "sessionid=s2; max-age=3599.5; HttpOnly",
			wantApply: true,
			wantKey:   "sessionid",
			wantValue: "s2",
		},
		{
			name:      "integer max-age is ignored",
			header:    "tracking=1; Max-Age=86400",
			wantApply: false,
		},
		{
			name:      "no max-age is ignored",
			header:    "csrftoken=tok; Path=/; Secure",
			wantApply: false,
		},
		{
			name:      "value containing equals is kept whole",
			header:    "orm-rt=a=b=c; Max-Age=100.25",
			wantApply: true,
			wantKey:   "orm-rt",
			wantValue: "a=b=c",
		},
		{
			name:      "missing pair fails soft",
			header:    "; Max-Age=12.5",
			wantApply: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := New(filepath.Join(t.TempDir(), "cookies.json"))
			got := store.ApplyHeader(tt.header)
			if got != tt.wantApply {
				t.Fatalf("ApplyHeader(%q) = %v, want %v", tt.header, got, tt.wantApply)
			}
			if tt.wantApply {
				if v, _ := store.Get(tt.wantKey); v != tt.wantValue {
					t.Errorf("Get(%q) = %q, want %q", tt.wantKey, v, tt.wantValue)
				}
			}
		})
	}

	t.Run("apply overwrites existing value", func(t *testing.T) {
		store := New(filepath.Join(t.TempDir(), "cookies.json"))
		store.Set("orm-jwt", "old")
		before := store.UpdatedAt()

		if !store.ApplyHeader("orm-jwt=new; Max-Age=100.5") {
			t.Fatal("ApplyHeader() = false, want true")
		}
		if v, _ := store.Get("orm-jwt"); v != "new" {
			t.Errorf("Get(orm-jwt) = %q, want %q", v, "new")
		}
		if !store.UpdatedAt().After(before) && !store.UpdatedAt().Equal(before) {
			t.Error("UpdatedAt() went backwards after apply")
		}
	})
}

func TestSave(t *testing.T) {
	t.Run("round trips through disk", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cookies.json")
		store := New(path)
		store.Set("orm-jwt", "abc")
		store.Set("sessionid", "xyz")

		if err := store.Save(); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		reloaded, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if v, _ := reloaded.Get("sessionid"); v != "xyz" {
			t.Errorf("Get(sessionid) = %q, want %q", v, "xyz")
		}
	})

	t.Run("file is private", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cookies.json")
		store := New(path)
		store.Set("orm-jwt", "abc")

		if err := store.Save(); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("Stat() error = %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0o600 {
			t.Errorf("file mode = %o, want 600", perm)
		}
	})

	t.Run("save preserves existing keys", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cookies.json")
		if err := os.WriteFile(path, []byte(`{"orm-jwt":"abc","sessionid":"xyz"}`), 0o600); err != nil {
			t.Fatalf("failed to write fixture: %v", err)
		}

		store, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		store.ApplyHeader("orm-rt=refreshed; Max-Age=99.9")
		if err := store.Save(); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile() error = %v", err)
		}
		var onDisk map[string]string
		if err := json.Unmarshal(data, &onDisk); err != nil {
			t.Fatalf("saved bundle is not valid JSON: %v", err)
		}
		for _, key := range []string{"orm-jwt", "sessionid", "orm-rt"} {
			if _, ok := onDisk[key]; !ok {
				t.Errorf("saved bundle missing key %q", key)
			}
		}
	})
}

func TestHeader(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "cookies.json"))
	store.Set("b", "2")
	store.Set("a", "1")
	store.Set("c", "3")

	want := "a=1; b=2; c=3"
	if got := store.Header(); got != want {
		t.Errorf("Header() = %q, want %q", got, want)
	}

	t.Run("empty store renders empty header", func(t *testing.T) {
		empty := New(filepath.Join(t.TempDir(), "cookies.json"))
		if got := empty.Header(); got != "" {
			t.Errorf("Header() = %q, want empty", got)
		}
	})
}

func TestSnapshot(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "cookies.json"))
	store.Set("orm-jwt", "abc")

	snap := store.Snapshot()
	snap["orm-jwt"] = "mutated"

	if v, _ := store.Get("orm-jwt"); v != "abc" {
		t.Errorf("Snapshot() leaked internal map: Get(orm-jwt) = %q", v)
	}
}
