package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackzampolin/skillshelf/internal/config"
	"github.com/jackzampolin/skillshelf/internal/cookies"
	"github.com/jackzampolin/skillshelf/internal/filter"
	"github.com/jackzampolin/skillshelf/internal/home"
	"github.com/jackzampolin/skillshelf/internal/oreilly"
	"github.com/jackzampolin/skillshelf/internal/session"
	"github.com/jackzampolin/skillshelf/internal/skillfile"
)

// catalogServer fakes the v1 wildcard search, keyed by page number. Unknown
// pages return an empty result set.
type catalogServer struct {
	*httptest.Server
	mu       sync.Mutex
	fetches  []string
	pages    map[string]string
	failures map[string]int // page -> number of 503 responses before success
}

func newCatalogServer(t *testing.T) *catalogServer {
	t.Helper()
	cs := &catalogServer{
		pages:    map[string]string{},
		failures: map[string]int{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/search", func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")

		cs.mu.Lock()
		cs.fetches = append(cs.fetches, page)
		if cs.failures[page] > 0 {
			cs.failures[page]--
			cs.mu.Unlock()
			http.Error(w, "upstream unavailable", http.StatusServiceUnavailable)
			return
		}
		body, ok := cs.pages[page]
		cs.mu.Unlock()

		if !ok {
			fmt.Fprint(w, `{"results": [], "total": 0}`)
			return
		}
		fmt.Fprint(w, body)
	})

	cs.Server = httptest.NewServer(mux)
	t.Cleanup(cs.Close)
	return cs
}

func (cs *catalogServer) setPage(page, body string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.pages[page] = body
}

func (cs *catalogServer) count(page string) int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	n := 0
	for _, f := range cs.fetches {
		if f == page {
			n++
		}
	}
	return n
}

func catalogItem(id, title string, topics ...string) string {
	names := make([]string, len(topics))
	for i, topic := range topics {
		names[i] = fmt.Sprintf(`{"name": %q}`, topic)
	}
	return fmt.Sprintf(
		`{"archive_id": %q, "isbn": %q, "title": %q, "format": "book", "language": "en", "topics": [%s]}`,
		id, id, title, strings.Join(names, ","))
}

func newTestWalker(t *testing.T, cs *catalogServer, root string) (*Walker, *home.Dir) {
	t.Helper()

	hm, err := home.New(root)
	if err != nil {
		t.Fatal(err)
	}
	if err := hm.EnsureExists(); err != nil {
		t.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := cookies.New(filepath.Join(root, "cookies.json"))
	sess, err := session.New(config.HTTPCfg{
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    10 * time.Second,
		UserAgent:      "test-agent",
	}, cs.URL, store, logger)
	if err != nil {
		t.Fatalf("session.New() error = %v", err)
	}

	walker := New(Config{
		Client: oreilly.New(sess, logger, oreilly.APIv1),
		Home:   hm,
		Logger: logger,
		Catalog: config.CatalogCfg{
			StartPage: 1,
			EndPage:   10,
			SaveEvery: 2,
		},
		Filter: config.FilterCfg{MinTitleLen: 5, ShortTitleLen: 10, LongTitleLen: 15},
	})
	return walker, hm
}

func loadWalkState(t *testing.T, hm *home.Dir) map[string]json.RawMessage {
	t.Helper()
	data, err := os.ReadFile(hm.CatalogWalkPath())
	if err != nil {
		t.Fatalf("reading walk state: %v", err)
	}
	var st map[string]json.RawMessage
	if err := json.Unmarshal(data, &st); err != nil {
		t.Fatalf("decoding walk state: %v", err)
	}
	return st
}

func TestWalk(t *testing.T) {
	cs := newCatalogServer(t)
	cs.setPage("1", fmt.Sprintf(`{"results": [%s], "total": 4}`, strings.Join([]string{
		catalogItem("9781098100001", "Practical Python Projects", "Python", "Testing"),
		catalogItem("9781098100002", "Python Distilled Second Edition", "Python"),
		`{"archive_id": "vid-1", "title": "Python Masterclass Series", "format": "video", "language": "en"}`,
		catalogItem("9781098100003", "Thinking In Systems Design"),
	}, ",")))
	cs.setPage("2", fmt.Sprintf(`{"results": [%s], "total": 4}`, strings.Join([]string{
		catalogItem("9781098100004", "Go In Practice", "Go"),
		catalogItem("9781098100001", "Practical Python Projects", "Python", "Testing"),
	}, ",")))

	walker, hm := newTestWalker(t, cs, t.TempDir())

	summary, err := walker.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if summary.PagesProcessed != 2 || summary.BooksAdded != 3 || summary.TotalBooks != 3 {
		t.Errorf("summary = %+v", summary)
	}
	if summary.Topics != 3 || summary.NoTopic != 1 {
		t.Errorf("topics = %d no_topic = %d, want 3 and 1", summary.Topics, summary.NoTopic)
	}
	if summary.Filtered[filter.StageFormat] != 1 || summary.Filtered[filter.StageDuplicate] != 1 {
		t.Errorf("filtered = %v", summary.Filtered)
	}

	python, err := skillfile.Load(hm.SkillFilePath("python"))
	if err != nil {
		t.Fatalf("Load(python) error = %v", err)
	}
	if python.SkillName != "Python" || python.TotalBooks != 2 {
		t.Errorf("python file = %q with %d books", python.SkillName, python.TotalBooks)
	}
	testingFile, err := skillfile.Load(hm.SkillFilePath("testing"))
	if err != nil {
		t.Fatalf("Load(testing) error = %v", err)
	}
	if testingFile.TotalBooks != 1 {
		t.Errorf("testing file has %d books, want 1", testingFile.TotalBooks)
	}

	st := loadWalkState(t, hm)
	if got := string(st["last_completed_page"]); got != "2" {
		t.Errorf("last_completed_page = %s, want 2", got)
	}
	var ids []string
	if err := json.Unmarshal(st["discovered_book_ids"], &ids); err != nil {
		t.Fatal(err)
	}
	if len(ids) != 3 {
		t.Errorf("discovered ids = %v, want 3 entries", ids)
	}

	report, err := os.ReadFile(hm.CatalogSummaryPath())
	if err != nil {
		t.Fatalf("reading summary: %v", err)
	}
	if !strings.Contains(string(report), "Python: 2 books") {
		t.Errorf("summary report missing topic ranking:\n%s", report)
	}

	t.Run("resume continues after the last completed page", func(t *testing.T) {
		cs.setPage("3", fmt.Sprintf(`{"results": [%s], "total": 2}`, strings.Join([]string{
			catalogItem("9781098100005", "Cloud Native Go Patterns", "Go"),
			catalogItem("9781098100001", "Practical Python Projects", "Python", "Testing"),
		}, ",")))

		summary, err := walker.Run(context.Background(), Options{Resume: true})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if summary.PagesProcessed != 1 || summary.BooksAdded != 1 {
			t.Errorf("summary = %+v", summary)
		}
		if summary.Duplicates != 1 {
			t.Errorf("duplicates = %d, want 1", summary.Duplicates)
		}
		if summary.TotalBooks != 4 {
			t.Errorf("total books = %d, want 4", summary.TotalBooks)
		}
		if n := cs.count("1"); n != 1 {
			t.Errorf("page 1 fetched %d times, want 1", n)
		}

		goFile, err := skillfile.Load(hm.SkillFilePath("go"))
		if err != nil {
			t.Fatalf("Load(go) error = %v", err)
		}
		if goFile.TotalBooks != 2 {
			t.Errorf("go file has %d books, want 2", goFile.TotalBooks)
		}
	})

	t.Run("update rewalks without duplicating entries", func(t *testing.T) {
		summary, err := walker.Run(context.Background(), Options{Update: true})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if summary.BooksAdded != 0 {
			t.Errorf("books added = %d, want 0", summary.BooksAdded)
		}
		if summary.TotalBooks != 4 {
			t.Errorf("total books = %d, want 4", summary.TotalBooks)
		}
		if n := cs.count("1"); n != 2 {
			t.Errorf("page 1 fetched %d times, want 2", n)
		}

		python, err := skillfile.Load(hm.SkillFilePath("python"))
		if err != nil {
			t.Fatalf("Load(python) error = %v", err)
		}
		if python.TotalBooks != 2 {
			t.Errorf("python file has %d books, want 2", python.TotalBooks)
		}
	})
}

func TestWalkRetriesTransientErrors(t *testing.T) {
	cs := newCatalogServer(t)
	cs.failures["1"] = 1
	cs.setPage("1", fmt.Sprintf(`{"results": [%s], "total": 1}`,
		catalogItem("9781098100009", "Terraform Up and Running", "DevOps")))

	walker, hm := newTestWalker(t, cs, t.TempDir())

	summary, err := walker.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.BooksAdded != 1 {
		t.Errorf("books added = %d, want 1", summary.BooksAdded)
	}
	if n := cs.count("1"); n != 2 {
		t.Errorf("page 1 fetched %d times, want 2", n)
	}
	if _, err := skillfile.Load(hm.SkillFilePath("devops")); err != nil {
		t.Errorf("topic file: %v", err)
	}
}

func TestWalkRejectsCorruptState(t *testing.T) {
	cs := newCatalogServer(t)
	walker, hm := newTestWalker(t, cs, t.TempDir())
	if err := os.WriteFile(hm.CatalogWalkPath(), []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := walker.Run(context.Background(), Options{}); err == nil {
		t.Error("want an error for corrupt walk state")
	}
}
