// Package download drives the second phase: it reads the per-skill result
// files that discovery produced, orders them, and builds an EPUB for every
// book through one long-lived authenticated session. Every outcome lands in
// the progress tracker, so an interrupted run resumes where it stopped, and
// the cookie bundle is persisted at a fixed cadence so refreshed tokens
// survive a crash.
package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jackzampolin/skillshelf/internal/config"
	"github.com/jackzampolin/skillshelf/internal/cookies"
	"github.com/jackzampolin/skillshelf/internal/epub"
	"github.com/jackzampolin/skillshelf/internal/home"
	"github.com/jackzampolin/skillshelf/internal/oreilly"
	"github.com/jackzampolin/skillshelf/internal/progress"
	"github.com/jackzampolin/skillshelf/internal/ratelimit"
	"github.com/jackzampolin/skillshelf/internal/skillfile"
)

// dryRunListing caps how many skills a dry run prints in full.
const dryRunListing = 10

// Config wires a Controller.
type Config struct {
	Client  *oreilly.Client
	Home    *home.Dir
	Store   *cookies.Store
	Tracker *progress.Tracker
	Logger  *slog.Logger

	Download config.DownloadCfg
	// Discovery supplies the exclusion and priority lists, which both
	// phases share.
	Discovery config.DiscoveryCfg
}

// Controller downloads every discovered book, one skill at a time.
type Controller struct {
	client  *oreilly.Client
	home    *home.Dir
	store   *cookies.Store
	tracker *progress.Tracker
	logger  *slog.Logger
	cfg     config.DownloadCfg
	disc    config.DiscoveryCfg
}

// New creates a download controller.
func New(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		client:  cfg.Client,
		home:    cfg.Home,
		store:   cfg.Store,
		tracker: cfg.Tracker,
		logger:  logger,
		cfg:     cfg.Download,
		disc:    cfg.Discovery,
	}
}

// Options select and shape one download run.
type Options struct {
	Skills   []string // optional name filter, case-insensitive substring match
	MaxBooks int      // per-skill cap, overrides configuration when > 0
	Format   string   // variant selection, overrides configuration when set
	Force    bool     // rebuild books already marked completed or on disk
	DryRun   bool     // list the plan only, no network traffic or writes
}

// Summary reports one download run.
type Summary struct {
	Skills     int
	Books      int
	Downloaded int
	Skipped    int
	Failed     int
	Failures   []BookFailure
	Elapsed    time.Duration
}

// BookFailure is one failed book with the first line of its error.
type BookFailure struct {
	ID    string
	Title string
	Err   string
}

// outcome classifies one book attempt.
type outcome int

const (
	outcomeDownloaded outcome = iota
	outcomeSkipped
	outcomeFailed
)

// skillSet is one result file's worth of work.
type skillSet struct {
	name  string
	dir   string // PascalCase directory under the books root
	books []skillfile.Book
}

// Run downloads every selected skill's books in order and returns the run
// summary. Book failures are recorded and processing continues; Run itself
// fails only on configuration problems or context cancellation.
func (c *Controller) Run(ctx context.Context, opts Options) (*Summary, error) {
	start := time.Now()

	format := c.cfg.Format
	if opts.Format != "" {
		format = opts.Format
	}
	variants, err := epub.ParseVariants(format)
	if err != nil {
		return nil, err
	}

	sets, err := c.loadSkillSets(opts)
	if err != nil {
		return nil, err
	}
	if len(sets) == 0 {
		return nil, errors.New("no skill files to download, run discover first")
	}

	summary := &Summary{Skills: len(sets)}
	for _, set := range sets {
		summary.Books += len(set.books)
	}

	c.logger.Info("starting download",
		"skills", summary.Skills,
		"books", summary.Books,
		"format", format,
		"force", opts.Force,
		"dry_run", opts.DryRun,
	)

	if opts.DryRun {
		c.logPlan(sets)
		summary.Elapsed = time.Since(start)
		return summary, nil
	}

	if err := c.tracker.StartSession(len(sets), summary.Books); err != nil {
		return nil, err
	}
	names := make([]string, len(sets))
	for i, set := range sets {
		names[i] = set.name
	}
	if err := c.tracker.SetPendingSkills(names); err != nil {
		return nil, err
	}

	runErr := c.downloadAll(ctx, sets, variants, opts.Force, summary)

	c.saveCookies()
	if runErr != nil {
		if err := c.tracker.PauseSession(); err != nil {
			c.logger.Warn("failed to pause progress session", "error", err)
		}
	} else {
		if err := c.tracker.CompleteSession(); err != nil {
			c.logger.Warn("failed to complete progress session", "error", err)
		}
	}

	summary.Elapsed = time.Since(start)
	c.logSummary(summary)
	return summary, runErr
}

// downloadAll walks the skill sets sequentially. The books endpoint tracks
// per-account load, so unlike discovery there is no worker pool here.
func (c *Controller) downloadAll(ctx context.Context, sets []skillSet, variants []epub.Variant, force bool, summary *Summary) error {
	sinceSave := 0
	for i, set := range sets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.tracker.UpdateCurrentSkill(set.name, i+1, len(sets)); err != nil {
			c.logger.Warn("failed to update current skill", "skill", set.name, "error", err)
		}
		c.logger.Info("downloading skill",
			"skill", set.name,
			"position", fmt.Sprintf("%d/%d", i+1, len(sets)),
			"books", len(set.books),
		)

		builder := epub.New(c.client, c.logger, epub.Options{
			OutputDir: c.home.SkillBooksDir(set.dir),
			Variants:  variants,
		})

		for _, book := range set.books {
			if err := ctx.Err(); err != nil {
				return err
			}
			out, err := c.downloadBook(ctx, builder, set, book, variants, force, summary)
			if err != nil {
				return err
			}
			switch out {
			case outcomeDownloaded:
				summary.Downloaded++
				sinceSave++
				if c.cfg.TokenSaveInterval > 0 && sinceSave >= c.cfg.TokenSaveInterval {
					c.saveCookies()
					sinceSave = 0
				}
			case outcomeSkipped:
				// No request was made, so no pacing either.
				summary.Skipped++
				continue
			case outcomeFailed:
				summary.Failed++
			}
			if err := c.pause(ctx); err != nil {
				return err
			}
		}

		if err := c.tracker.MarkSkillCompleted(set.name); err != nil {
			c.logger.Warn("failed to record skill completion", "skill", set.name, "error", err)
		}
		if c.cfg.CheckpointEvery > 0 && (i+1)%c.cfg.CheckpointEvery == 0 {
			if err := c.tracker.CreateCheckpoint(); err != nil {
				c.logger.Warn("failed to create checkpoint", "error", err)
			}
		}
	}
	return nil
}

// downloadBook builds one book unless it is already done. Build failures are
// recorded in the tracker and reported through the outcome; only context
// cancellation is returned as an error.
func (c *Controller) downloadBook(ctx context.Context, builder *epub.Builder, set skillSet, book skillfile.Book, variants []epub.Variant, force bool, summary *Summary) (outcome, error) {
	id := book.BookID()
	if id == "" {
		c.logger.Warn("book record has no usable id", "skill", set.name, "title", book.Title)
		return outcomeSkipped, nil
	}

	if !force {
		// Legacy progress files carry URL-shaped ids, so check both forms.
		if c.tracker.IsCompleted(id) || c.tracker.IsCompleted(book.ID) {
			c.logger.Debug("already downloaded", "book", book.Title, "id", id)
			return outcomeSkipped, nil
		}
		dir := filepath.Join(c.home.SkillBooksDir(set.dir), epub.BookDirName(book.Title, id))
		if hasArchives(dir, variants) {
			c.logger.Info("archives already on disk", "book", book.Title, "id", id)
			if err := c.tracker.MarkSkipped(id); err != nil {
				c.logger.Warn("failed to record skipped book", "id", id, "error", err)
			}
			return outcomeSkipped, nil
		}
	}

	if err := c.tracker.UpdateCurrentItem(book.Title, id); err != nil {
		c.logger.Warn("failed to update current item", "id", id, "error", err)
	}

	res, err := builder.Build(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			return outcomeFailed, ctx.Err()
		}
		c.logger.Error("download failed", "book", book.Title, "id", id, "error", err)
		if terr := c.tracker.MarkFailed(id, err.Error()); terr != nil {
			c.logger.Warn("failed to record book failure", "id", id, "error", terr)
		}
		summary.Failures = append(summary.Failures, BookFailure{
			ID:    id,
			Title: book.Title,
			Err:   firstLine(err.Error()),
		})
		return outcomeFailed, nil
	}

	c.logger.Info("book downloaded",
		"book", res.Title,
		"id", id,
		"chapters", res.Chapters,
		"archives", len(res.Archives),
	)
	if err := c.tracker.MarkCompleted(id); err != nil {
		c.logger.Warn("failed to record book completion", "id", id, "error", err)
	}
	return outcomeDownloaded, nil
}

// loadSkillSets reads every result file, applies the name filter and the
// exclusion list, orders priority skills first, and caps each set at the
// per-skill book limit.
func (c *Controller) loadSkillSets(opts Options) ([]skillSet, error) {
	paths, err := skillfile.List(c.home.SkillFilesDir())
	if err != nil {
		return nil, err
	}

	maxBooks := c.cfg.MaxBooks
	if opts.MaxBooks > 0 {
		maxBooks = opts.MaxBooks
	}

	var sets []skillSet
	for _, path := range paths {
		file, err := skillfile.Load(path)
		if err != nil {
			c.logger.Warn("skipping unreadable skill file", "path", path, "error", err)
			continue
		}
		name := file.SkillName
		if c.disc.IsExcluded(name) {
			c.logger.Debug("skill excluded by configuration", "skill", name)
			continue
		}
		if len(opts.Skills) > 0 && !matchesAny(name, opts.Skills) {
			continue
		}
		books := file.Books
		if maxBooks > 0 && len(books) > maxBooks {
			books = books[:maxBooks]
		}
		if len(books) == 0 {
			continue
		}
		sets = append(sets, skillSet{name: name, dir: skillDirName(name), books: books})
	}

	if len(c.disc.PrioritySkills) == 0 {
		return sets, nil
	}
	ordered := make([]skillSet, 0, len(sets))
	for _, set := range sets {
		if c.disc.IsPriority(set.name) {
			ordered = append(ordered, set)
		}
	}
	for _, set := range sets {
		if !c.disc.IsPriority(set.name) {
			ordered = append(ordered, set)
		}
	}
	return ordered, nil
}

// hasArchives reports whether every requested variant already has an archive
// in the book's directory. Archive names embed the author list, which is
// unknown before metadata is fetched, so presence is checked by suffix.
func hasArchives(dir string, variants []epub.Variant) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, v := range variants {
		found := false
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || !strings.HasSuffix(name, ".epub") {
				continue
			}
			if strings.HasSuffix(name, " (Kindle).epub") == (v == epub.Kindle) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// skillDirName renders a skill name as its PascalCase directory under the
// books root: "machine learning" becomes "MachineLearning", "AI & ML"
// becomes "AIML".
func skillDirName(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, name)

	caser := cases.Title(language.English, cases.NoLower)
	var b strings.Builder
	for _, word := range strings.Fields(cleaned) {
		b.WriteString(caser.String(word))
	}
	if b.Len() == 0 {
		return skillfile.SanitizeName(name)
	}
	return b.String()
}

// pause sleeps the jittered inter-book delay.
func (c *Controller) pause(ctx context.Context) error {
	delay := c.cfg.BookDelay
	if delay <= 0 {
		return nil
	}
	return ratelimit.Jitter(ctx, delay*3/4, delay*5/4)
}

func (c *Controller) saveCookies() {
	if c.store == nil {
		return
	}
	if err := c.store.Save(); err != nil {
		c.logger.Warn("failed to persist cookies", "error", err)
	}
}

// logPlan lists what a real run would download.
func (c *Controller) logPlan(sets []skillSet) {
	shown := sets
	if len(shown) > dryRunListing {
		shown = shown[:dryRunListing]
	}
	for _, set := range shown {
		c.logger.Info("would download", "skill", set.name, "books", len(set.books), "dir", set.dir)
	}
	if rest := len(sets) - len(shown); rest > 0 {
		c.logger.Info("more skills not listed", "count", rest)
	}
}

func (c *Controller) logSummary(summary *Summary) {
	c.logger.Info("download run finished",
		"skills", summary.Skills,
		"books", summary.Books,
		"downloaded", summary.Downloaded,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"elapsed", summary.Elapsed.Round(time.Second).String(),
	)
	for _, f := range summary.Failures {
		c.logger.Warn("failed book", "id", f.ID, "title", f.Title, "error", f.Err)
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func matchesAny(name string, filters []string) bool {
	lower := strings.ToLower(name)
	for _, f := range filters {
		if strings.Contains(lower, strings.ToLower(f)) {
			return true
		}
	}
	return false
}
