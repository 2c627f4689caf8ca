// Package discovery drives the first phase: it fans a small worker pool out
// across the configured skills, paginates the search adapter over each
// skill's topic variants, runs every item through the filter pipeline, and
// persists one result file per skill. Workers share one session and one
// progress tracker; a skill's failure never aborts the run.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/jackzampolin/skillshelf/internal/config"
	"github.com/jackzampolin/skillshelf/internal/filter"
	"github.com/jackzampolin/skillshelf/internal/home"
	"github.com/jackzampolin/skillshelf/internal/oreilly"
	"github.com/jackzampolin/skillshelf/internal/progress"
	"github.com/jackzampolin/skillshelf/internal/ratelimit"
	"github.com/jackzampolin/skillshelf/internal/skillfile"
)

// searchAttempts bounds retries of one page fetch on transient errors.
const searchAttempts = 3

// Config wires a Controller.
type Config struct {
	Client  *oreilly.Client
	Home    *home.Dir
	Tracker *progress.Tracker
	Logger  *slog.Logger

	Discovery config.DiscoveryCfg
	Filter    config.FilterCfg
}

// Controller runs discovery over a skills list.
type Controller struct {
	client  *oreilly.Client
	home    *home.Dir
	tracker *progress.Tracker
	logger  *slog.Logger
	cfg     config.DiscoveryCfg
	filters config.FilterCfg
	limiter *ratelimit.Limiter
}

// New creates a discovery controller.
func New(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var limiter *ratelimit.Limiter
	if d := cfg.Discovery.RequestDelay; d > 0 {
		limiter = ratelimit.New(1/d.Seconds(), 1)
	}
	return &Controller{
		client:  cfg.Client,
		home:    cfg.Home,
		tracker: cfg.Tracker,
		logger:  logger,
		cfg:     cfg.Discovery,
		filters: cfg.Filter,
		limiter: limiter,
	}
}

// Options select and shape one discovery run.
type Options struct {
	SkillsFile string   // skills list path
	Skills     []string // optional name filter, case-insensitive substring match
	Update     bool     // re-discover skills whose result file already exists
	DryRun     bool     // evaluate skip rules only, no network traffic or writes
}

// Summary reports one discovery run.
type Summary struct {
	Processed     int
	Succeeded     int
	Failed        int
	AlreadyDone   int
	Skipped       []string // too-broad skill names
	BooksKept     int
	BooksExpected int
	Elapsed       time.Duration
}

type status string

const (
	statusDiscovered  status = "discovered"
	statusAlreadyDone status = "already_discovered"
	statusTooBroad    status = "too_broad"
	statusFailed      status = "failed"
)

// skillOutcome is one worker's result for one skill.
type skillOutcome struct {
	skill    Skill
	status   status
	kept     int
	filtered map[filter.Stage]int
	err      error
}

// runState is shared by the workers of one run.
type runState struct {
	opts    Options
	catalog []string
	total   int
	started atomic.Int64
}

// Run discovers every selected skill and returns the run summary. Skill
// failures are recorded and processing continues; Run itself fails only on
// configuration problems or context cancellation.
func (c *Controller) Run(ctx context.Context, opts Options) (*Summary, error) {
	skills, catalog, counted, err := LoadSkills(opts.SkillsFile)
	if err != nil {
		return nil, err
	}
	skills = c.selectSkills(skills, opts.Skills)
	if len(skills) == 0 {
		return nil, errors.New("no skills selected")
	}

	c.logger.Info("starting discovery",
		"skills", len(skills),
		"workers", c.workerCount(len(skills)),
		"api", c.client.API(),
		"counted", counted,
		"strict", c.cfg.Strict,
		"dry_run", opts.DryRun,
	)

	if !opts.DryRun {
		if err := c.tracker.StartSession(len(skills), 0); err != nil {
			return nil, err
		}
		names := make([]string, len(skills))
		for i, s := range skills {
			names[i] = s.Name
		}
		if err := c.tracker.SetPendingSkills(names); err != nil {
			return nil, err
		}
	}

	state := &runState{opts: opts, catalog: catalog, total: len(skills)}
	jobs := make(chan Skill)
	outcomes := make(chan skillOutcome)

	var wg sync.WaitGroup
	for i := 0; i < c.workerCount(len(skills)); i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			c.worker(ctx, id, state, jobs, outcomes)
		}(i)
	}

	go func() {
		defer close(jobs)
		for _, skill := range skills {
			select {
			case jobs <- skill:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	start := time.Now()
	summary := &Summary{}
	for outcome := range outcomes {
		c.record(outcome, summary, opts.DryRun)
	}
	sort.Strings(summary.Skipped)
	summary.Elapsed = time.Since(start)

	// An interrupted run stays resumable; only a full pass completes the
	// session.
	if !opts.DryRun {
		if ctx.Err() != nil {
			if err := c.tracker.PauseSession(); err != nil {
				c.logger.Warn("failed to pause progress session", "error", err)
			}
		} else {
			if err := c.tracker.CompleteSession(); err != nil {
				c.logger.Warn("failed to complete progress session", "error", err)
			}
		}
	}
	c.logSummary(summary)

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// workerCount bounds the pool size by the configured value and the number of
// skills.
func (c *Controller) workerCount(skills int) int {
	workers := c.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > skills {
		workers = skills
	}
	return workers
}

// selectSkills applies the exclusion list, the optional name filter, and the
// priority ordering.
func (c *Controller) selectSkills(skills []Skill, only []string) []Skill {
	selected := make([]Skill, 0, len(skills))
	for _, skill := range skills {
		if c.cfg.IsExcluded(skill.Name) {
			c.logger.Debug("skill excluded by configuration", "skill", skill.Name)
			continue
		}
		if len(only) > 0 && !matchesAny(skill.Name, only) {
			continue
		}
		selected = append(selected, skill)
	}

	if len(c.cfg.PrioritySkills) == 0 {
		return selected
	}
	ordered := make([]Skill, 0, len(selected))
	for _, skill := range selected {
		if c.cfg.IsPriority(skill.Name) {
			ordered = append(ordered, skill)
		}
	}
	for _, skill := range selected {
		if !c.cfg.IsPriority(skill.Name) {
			ordered = append(ordered, skill)
		}
	}
	return ordered
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

// worker pulls skills from the shared queue until it closes or the context
// ends.
func (c *Controller) worker(ctx context.Context, id int, state *runState, jobs <-chan Skill, outcomes chan<- skillOutcome) {
	logger := c.logger.With("worker", id)
	for {
		select {
		case <-ctx.Done():
			return
		case skill, ok := <-jobs:
			if !ok {
				return
			}

			n := int(state.started.Add(1))
			if !state.opts.DryRun {
				if err := c.tracker.UpdateCurrentSkill(skill.Name, n, state.total); err != nil {
					logger.Warn("failed to update current skill", "skill", skill.Name, "error", err)
				}
			}

			outcome := c.discoverSkill(ctx, skill, state, logger)
			select {
			case outcomes <- outcome:
			case <-ctx.Done():
				return
			}

			// Pause between skills only when the remote was touched.
			if outcome.status == statusDiscovered || outcome.status == statusFailed {
				if !state.opts.DryRun && c.cfg.SkillDelay > 0 {
					if err := ratelimit.Jitter(ctx, c.cfg.SkillDelay, c.cfg.SkillDelay); err != nil {
						return
					}
				}
			}
		}
	}
}

// discoverSkill runs the skip rules and, when none apply, the full
// variant-pagination-filter pipeline for one skill.
func (c *Controller) discoverSkill(ctx context.Context, skill Skill, state *runState, logger *slog.Logger) skillOutcome {
	out := skillOutcome{skill: skill}
	path := c.home.SkillFilePath(skillfile.SanitizeName(skill.Name))

	if !state.opts.Update {
		if _, err := os.Stat(path); err == nil {
			logger.Info("skill already discovered", "skill", skill.Name, "path", path)
			out.status = statusAlreadyDone
			return out
		}
	}

	if c.cfg.TooBroadLimit > 0 && skill.Expected > c.cfg.TooBroadLimit {
		logger.Warn("skipped (too broad)",
			"skill", skill.Name,
			"expected", skill.Expected,
			"limit", c.cfg.TooBroadLimit,
		)
		out.status = statusTooBroad
		return out
	}

	variants := Variants(skill.Name, c.cfg.AliasesFor(skill.Name), state.catalog, !c.cfg.Strict)
	bound := c.pageBound(skill.Expected)

	if state.opts.DryRun {
		logger.Info("dry run: would discover",
			"skill", skill.Name,
			"expected", skill.Expected,
			"page_bound", bound,
			"variants", strings.Join(variants, ", "),
		)
		out.status = statusDiscovered
		return out
	}

	logger.Info("discovering skill", "skill", skill.Name, "expected", skill.Expected, "variants", len(variants))

	pipe := filter.New(c.filters, skill.Name, variants, c.cfg.Strict)
	books := make([]skillfile.Book, 0, 64)
	filtered := make(map[filter.Stage]int)

	for _, topic := range variants {
		done, err := c.searchTopic(ctx, topic, pipe, bound, skill.Expected, &books, filtered, logger)
		if err != nil {
			out.status = statusFailed
			out.err = err
			return out
		}
		if done {
			break
		}
	}
	if err := ctx.Err(); err != nil {
		out.status = statusFailed
		out.err = err
		return out
	}

	file := &skillfile.File{
		SkillName:          skill.Name,
		DiscoveryTimestamp: float64(time.Now().UnixNano()) / 1e9,
		Books:              books,
	}
	if err := skillfile.Save(path, file); err != nil {
		out.status = statusFailed
		out.err = err
		return out
	}

	out.status = statusDiscovered
	out.kept = len(books)
	out.filtered = filtered
	logger.Info("skill discovered",
		"skill", skill.Name,
		"kept", out.kept,
		"filtered", totalFiltered(filtered),
		"filtered_by_stage", filterBreakdown(filtered),
		"expected", skill.Expected,
		"diff", out.kept-skill.Expected,
		"path", path,
	)
	return out
}

// searchTopic paginates one topic variant, feeding kept items into books. It
// reports whether the target count was reached.
func (c *Controller) searchTopic(ctx context.Context, topic string, pipe *filter.Pipeline, bound, target int, books *[]skillfile.Book, filtered map[filter.Stage]int, logger *slog.Logger) (bool, error) {
	size := c.cfg.PageSize
	if size < 1 {
		size = 100
	}

	for page := 1; ; page++ {
		var result *oreilly.SearchPage
		err := retry.Do(
			func() error {
				var ferr error
				result, ferr = c.client.FetchPage(ctx, topic, page, size)
				return ferr
			},
			retry.Context(ctx),
			retry.Attempts(searchAttempts),
			retry.Delay(time.Second),
			retry.DelayType(retry.BackOffDelay),
			retry.LastErrorOnly(true),
			retry.RetryIf(func(err error) bool { return errors.Is(err, oreilly.ErrTransient) }),
		)
		if err != nil {
			return false, fmt.Errorf("topic %q page %d: %w", topic, page, err)
		}

		if page == 1 && result.Total > 0 {
			logger.Info("topic total reported", "topic", topic, "available", result.Total)
		}
		if len(result.Items) == 0 {
			logger.Debug("empty page, topic finished", "topic", topic, "page", page)
			return false, nil
		}

		for i := range result.Items {
			item := &result.Items[i]
			verdict := pipe.Check(item)
			if !verdict.Keep {
				filtered[verdict.Stage]++
				logger.Debug("item filtered", "stage", string(verdict.Stage), "title", verdict.Title)
				continue
			}
			*books = append(*books, skillfile.RecordFromItem(item))
			if target > 0 && len(*books) >= target {
				logger.Debug("target count reached", "topic", topic, "kept", len(*books))
				return true, nil
			}
		}
		logger.Debug("page processed", "topic", topic, "page", page, "kept_so_far", len(*books))

		if !result.HasNext {
			logger.Debug("no next page", "topic", topic, "page", page)
			return false, nil
		}
		if page >= bound {
			logger.Warn("page cap reached", "topic", topic, "pages", page)
			return false, nil
		}
		if err := c.pacing(ctx); err != nil {
			return false, err
		}
	}
}

// pageBound returns the pagination cap for a skill: estimated pages from the
// expected count plus slack, within the absolute limit. Skills without a
// count get half the absolute limit.
func (c *Controller) pageBound(expected int) int {
	limit := c.cfg.MaxPages
	if limit < 1 {
		limit = 1
	}
	if expected <= 0 {
		if limit > 1 {
			return (limit + 1) / 2
		}
		return limit
	}
	size := c.cfg.PageSize
	if size < 1 {
		size = 100
	}
	estimated := (expected+size-1)/size + c.cfg.PageSlack
	if estimated > limit {
		return limit
	}
	if estimated < 1 {
		return 1
	}
	return estimated
}

// pacing spaces search requests across the whole worker pool. The service
// watches per-account request timing, so the token bucket is shared rather
// than per worker, with a little jitter on top so the cadence is not exact.
func (c *Controller) pacing(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx, ratelimit.ClassSearch); err != nil {
		return err
	}
	return ratelimit.Jitter(ctx, 0, c.cfg.RequestDelay/4)
}

// record folds one outcome into the summary and the progress tracker.
func (c *Controller) record(out skillOutcome, summary *Summary, dryRun bool) {
	summary.Processed++
	switch out.status {
	case statusDiscovered:
		summary.Succeeded++
		summary.BooksKept += out.kept
		summary.BooksExpected += out.skill.Expected
		if dryRun {
			return
		}
		if err := c.tracker.MarkSkillCompleted(out.skill.Name); err != nil {
			c.logger.Warn("failed to record skill completion", "skill", out.skill.Name, "error", err)
		}
		if out.kept > 0 {
			if err := c.tracker.AddDiscoveredBooks(out.kept); err != nil {
				c.logger.Warn("failed to record discovered books", "skill", out.skill.Name, "error", err)
			}
		}
	case statusAlreadyDone:
		summary.AlreadyDone++
		if dryRun {
			return
		}
		if err := c.tracker.MarkSkillCompleted(out.skill.Name); err != nil {
			c.logger.Warn("failed to record skill completion", "skill", out.skill.Name, "error", err)
		}
	case statusTooBroad:
		summary.Skipped = append(summary.Skipped, out.skill.Name)
		if dryRun {
			return
		}
		if err := c.tracker.MarkSkillSkipped(out.skill.Name); err != nil {
			c.logger.Warn("failed to record skipped skill", "skill", out.skill.Name, "error", err)
		}
	case statusFailed:
		summary.Failed++
		c.logger.Error("skill discovery failed", "skill", out.skill.Name, "error", out.err)
		if dryRun {
			return
		}
		if err := c.tracker.MarkSkillFailed(out.skill.Name, out.err.Error()); err != nil {
			c.logger.Warn("failed to record skill failure", "skill", out.skill.Name, "error", err)
		}
	}
}

// logSummary logs the end-of-run totals.
func (c *Controller) logSummary(s *Summary) {
	c.logger.Info("discovery finished",
		"processed", s.Processed,
		"succeeded", s.Succeeded,
		"failed", s.Failed,
		"already_discovered", s.AlreadyDone,
		"too_broad", len(s.Skipped),
		"books_kept", s.BooksKept,
		"books_expected", s.BooksExpected,
		"diff", s.BooksKept-s.BooksExpected,
		"elapsed", s.Elapsed.Round(time.Second).String(),
	)
	if len(s.Skipped) > 0 {
		c.logger.Info("skipped skills (too broad)", "skills", strings.Join(s.Skipped, ", "))
	}
}

func totalFiltered(filtered map[filter.Stage]int) int {
	total := 0
	for _, n := range filtered {
		total += n
	}
	return total
}

// filterBreakdown renders per-stage rejection counts for the summary event.
func filterBreakdown(filtered map[filter.Stage]int) string {
	if len(filtered) == 0 {
		return ""
	}
	stages := make([]string, 0, len(filtered))
	for stage := range filtered {
		stages = append(stages, string(stage))
	}
	sort.Strings(stages)

	var b strings.Builder
	for i, stage := range stages {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s=%d", stage, filtered[filter.Stage(stage)])
	}
	return b.String()
}
