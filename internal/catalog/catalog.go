// Package catalog walks the whole catalog through the v1 wildcard search,
// page by page, bucketing every kept book into per-topic result files. The
// walk persists its resume point and global dedup set every few pages, so an
// interrupted walk of several thousand pages picks up where it stopped.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/jackzampolin/skillshelf/internal/config"
	"github.com/jackzampolin/skillshelf/internal/filter"
	"github.com/jackzampolin/skillshelf/internal/home"
	"github.com/jackzampolin/skillshelf/internal/oreilly"
	"github.com/jackzampolin/skillshelf/internal/ratelimit"
	"github.com/jackzampolin/skillshelf/internal/skillfile"
)

// walkAttempts bounds retries of one page fetch on transient errors.
const walkAttempts = 3

// summaryTopics caps the ranked topic list in the summary file.
const summaryTopics = 20

// Config wires a Walker.
type Config struct {
	Client *oreilly.Client
	Home   *home.Dir
	Logger *slog.Logger

	Catalog config.CatalogCfg
	Filter  config.FilterCfg
}

// Walker runs the sequential catalog page walk.
type Walker struct {
	client  *oreilly.Client
	home    *home.Dir
	logger  *slog.Logger
	cfg     config.CatalogCfg
	filters config.FilterCfg
}

// New creates a catalog walker.
func New(cfg Config) *Walker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Walker{
		client:  cfg.Client,
		home:    cfg.Home,
		logger:  logger,
		cfg:     cfg.Catalog,
		filters: cfg.Filter,
	}
}

// Options select and shape one walk.
type Options struct {
	StartPage int  // overrides the configured start page when positive
	EndPage   int  // overrides the configured end page when positive
	Resume    bool // continue after the last completed page on record
	Update    bool // rewalk the full range, keeping the dedup set
}

// Summary reports one walk.
type Summary struct {
	PagesProcessed int
	BooksAdded     int // unique books added this session
	TotalBooks     int // unique books on record, all walks
	Duplicates     int // cross-walk duplicate occurrences skipped, all walks
	Topics         int // topic files touched, all walks
	NoTopic        int // kept items dropped for carrying no topic
	Filtered       map[filter.Stage]int
	Elapsed        time.Duration
}

// walk is the in-memory state of one run.
type walk struct {
	state   *walkState
	seen    map[string]struct{}
	topics  map[string]struct{}
	buckets map[string]*bucket
	pipe    *filter.Pipeline
	summary *Summary
}

// bucket is one topic's result file plus its id set, loaded lazily and
// flushed with the walk state.
type bucket struct {
	file  *skillfile.File
	ids   map[string]struct{}
	dirty bool
}

func newWalk(st *walkState, filters config.FilterCfg) *walk {
	run := &walk{
		state:   st,
		seen:    make(map[string]struct{}, len(st.DiscoveredIDs)),
		topics:  make(map[string]struct{}, len(st.Topics)),
		buckets: make(map[string]*bucket),
		pipe:    filter.New(filters, "", nil, false),
		summary: &Summary{Filtered: make(map[filter.Stage]int)},
	}
	for _, id := range st.DiscoveredIDs {
		run.seen[id] = struct{}{}
	}
	for _, topic := range st.Topics {
		run.topics[topic] = struct{}{}
	}
	return run
}

// Run walks the selected page range and returns the walk summary. Progress
// is persisted every few pages and once more on the way out, so the summary
// and the state file agree even after an interrupt.
func (w *Walker) Run(ctx context.Context, opts Options) (*Summary, error) {
	st, found, err := loadState(w.home.CatalogWalkPath())
	if err != nil {
		return nil, err
	}

	start := opts.StartPage
	if start < 1 {
		start = w.cfg.StartPage
	}
	if start < 1 {
		start = 1
	}
	if opts.Resume && !opts.Update && found {
		start = st.LastCompletedPage + 1
	}
	end := opts.EndPage
	if end < 1 {
		end = w.cfg.EndPage
	}
	if end < start {
		return nil, fmt.Errorf("page range %d-%d is empty", start, end)
	}

	run := newWalk(st, w.filters)
	if found {
		w.logger.Info("loaded walk state",
			"unique_books", len(run.seen),
			"last_completed_page", st.LastCompletedPage,
		)
	}
	w.logger.Info("starting catalog walk", "start_page", start, "end_page", end, "pages", end-start+1)

	started := time.Now()
	var walkErr error
	for page := start; page <= end; page++ {
		if err := ctx.Err(); err != nil {
			walkErr = err
			break
		}

		result, err := w.fetchPage(ctx, page)
		if err != nil {
			walkErr = err
			break
		}
		if len(result.Items) == 0 {
			w.logger.Info("empty page, catalog exhausted", "page", page)
			break
		}

		for i := range result.Items {
			w.process(run, &result.Items[i])
		}
		run.summary.PagesProcessed++
		st.LastCompletedPage = page

		if page == start || (page-start+1)%10 == 0 {
			w.logProgress(run, page, start, end, started)
		}
		if w.cfg.SaveEvery > 0 && (page-start+1)%w.cfg.SaveEvery == 0 {
			if err := w.persist(run); err != nil {
				walkErr = err
				break
			}
		}
		if page < end {
			if err := w.pacing(ctx); err != nil {
				walkErr = err
				break
			}
		}
	}

	if err := w.persist(run); err != nil && walkErr == nil {
		walkErr = err
	}

	s := run.summary
	s.TotalBooks = st.TotalBooks
	s.Duplicates = st.Duplicates
	s.Topics = len(run.topics)
	s.Elapsed = time.Since(started)

	if err := w.writeSummary(s); err != nil {
		w.logger.Warn("failed to write catalog summary", "error", err)
	}
	w.logger.Info("catalog walk finished",
		"pages", s.PagesProcessed,
		"books_added", s.BooksAdded,
		"total_books", s.TotalBooks,
		"duplicates", s.Duplicates,
		"topics", s.Topics,
		"elapsed", s.Elapsed.Round(time.Second).String(),
	)
	return s, walkErr
}

// process runs one raw item through the pipeline, the dedup set, and the
// topic buckets.
func (w *Walker) process(run *walk, item *oreilly.SearchItem) {
	verdict := run.pipe.Check(item)
	if !verdict.Keep {
		run.summary.Filtered[verdict.Stage]++
		return
	}
	if _, dup := run.seen[item.ID()]; dup {
		run.state.Duplicates++
		return
	}
	topics := item.TopicNames()
	if len(topics) == 0 {
		run.summary.NoTopic++
		return
	}

	book := skillfile.RecordFromItem(item)
	for _, topic := range topics {
		w.addToTopic(run, book, topic)
	}
	run.seen[book.ID] = struct{}{}
	run.state.TotalBooks++
	run.summary.BooksAdded++
}

// addToTopic appends the book to the topic's bucket unless the topic file
// already holds it.
func (w *Walker) addToTopic(run *walk, book skillfile.Book, topic string) {
	sanitized := skillfile.SanitizeName(topic)
	if sanitized == "" {
		return
	}
	b, ok := run.buckets[sanitized]
	if !ok {
		b = w.loadBucket(sanitized, topic)
		run.buckets[sanitized] = b
	}
	if _, dup := b.ids[book.BookID()]; dup {
		return
	}
	b.file.Books = append(b.file.Books, book)
	b.ids[book.BookID()] = struct{}{}
	b.dirty = true
	run.topics[topic] = struct{}{}
}

// loadBucket reads a topic's existing result file, normalizing legacy
// URL-wrapped ids into the bucket's dedup set. Unreadable files are replaced.
func (w *Walker) loadBucket(sanitized, topic string) *bucket {
	path := w.home.SkillFilePath(sanitized)
	file, err := skillfile.Load(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			w.logger.Warn("unreadable topic file will be replaced", "path", path, "error", err)
		}
		file = &skillfile.File{SkillName: topic}
	}

	b := &bucket{file: file, ids: make(map[string]struct{}, len(file.Books))}
	for i := range file.Books {
		b.ids[file.Books[i].BookID()] = struct{}{}
	}
	return b
}

// fetchPage fetches one catalog page, retrying transient errors.
func (w *Walker) fetchPage(ctx context.Context, page int) (*oreilly.SearchPage, error) {
	var result *oreilly.SearchPage
	err := retry.Do(
		func() error {
			var ferr error
			result, ferr = w.client.FetchCatalogPage(ctx, page)
			return ferr
		},
		retry.Context(ctx),
		retry.Attempts(walkAttempts),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return errors.Is(err, oreilly.ErrTransient) }),
	)
	if err != nil {
		return nil, fmt.Errorf("catalog page %d: %w", page, err)
	}
	return result, nil
}

// persist flushes dirty topic buckets and rewrites the walk state.
func (w *Walker) persist(run *walk) error {
	now := float64(time.Now().UnixNano()) / 1e9
	for sanitized, b := range run.buckets {
		if !b.dirty {
			continue
		}
		b.file.DiscoveryTimestamp = now
		if err := skillfile.Save(w.home.SkillFilePath(sanitized), b.file); err != nil {
			return err
		}
		b.dirty = false
	}

	st := run.state
	st.DiscoveredIDs = sortedKeys(run.seen)
	st.Topics = sortedKeys(run.topics)
	st.Timestamp = now
	return saveState(w.home.CatalogWalkPath(), st)
}

// pacing sleeps the jittered inter-page delay.
func (w *Walker) pacing(ctx context.Context) error {
	delay := w.cfg.Delay
	if delay <= 0 {
		return nil
	}
	return ratelimit.Jitter(ctx, delay*3/4, delay*5/4)
}

func (w *Walker) logProgress(run *walk, page, start, end int, started time.Time) {
	done := page - start + 1
	total := end - start + 1
	elapsed := time.Since(started)
	var eta time.Duration
	if done > 0 && page < end {
		eta = time.Duration(float64(elapsed) / float64(done) * float64(end-page))
	}
	w.logger.Info("walk progress",
		"page", fmt.Sprintf("%d/%d", page, end),
		"pct", fmt.Sprintf("%.1f%%", float64(done)/float64(total)*100),
		"books", run.state.TotalBooks,
		"topics", len(run.topics),
		"duplicates", run.state.Duplicates,
		"eta", eta.Round(time.Minute).String(),
	)
}

// writeSummary renders the plain-text walk report: session totals plus the
// largest topics measured from the result files on disk.
func (w *Walker) writeSummary(s *Summary) error {
	p := message.NewPrinter(language.English)

	var b []byte
	add := func(format string, args ...any) {
		b = append(b, p.Sprintf(format, args...)...)
		b = append(b, '\n')
	}

	add("CATALOG WALK SUMMARY")
	add("==================================================")
	add("")
	add("Pages Processed: %d", s.PagesProcessed)
	add("Books Added This Session: %d", s.BooksAdded)
	add("Total Books Discovered: %d", s.TotalBooks)
	add("Duplicates Skipped: %d", s.Duplicates)
	add("Topics: %d", s.Topics)
	add("Elapsed: %v", s.Elapsed.Round(time.Second))
	add("")
	add("TOPICS BY BOOK COUNT:")
	add("------------------------------")

	type topicSize struct {
		name  string
		books int
	}
	var sizes []topicSize
	paths, err := skillfile.List(w.home.SkillFilesDir())
	if err != nil {
		return err
	}
	for _, path := range paths {
		file, err := skillfile.Load(path)
		if err != nil {
			continue
		}
		sizes = append(sizes, topicSize{name: file.SkillName, books: file.TotalBooks})
	}
	sort.Slice(sizes, func(i, j int) bool {
		if sizes[i].books != sizes[j].books {
			return sizes[i].books > sizes[j].books
		}
		return sizes[i].name < sizes[j].name
	})

	for i, ts := range sizes {
		if i >= summaryTopics {
			add("... and %d more topics", len(sizes)-summaryTopics)
			break
		}
		add("%s: %d books", ts.name, ts.books)
	}
	add("")
	add("Topic files: %s", w.home.SkillFilesDir())
	add("Walk state: %s", w.home.CatalogWalkPath())

	return os.WriteFile(w.home.CatalogSummaryPath(), b, 0o644)
}
