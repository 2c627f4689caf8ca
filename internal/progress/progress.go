// Package progress owns the download progress snapshot: one JSON file
// rewritten whole on every mutation, a bounded checkpoint ring, and derived
// rate and ETA figures. A plain-text live view is maintained alongside for
// tail -f watching.
package progress

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session states.
const (
	StatusInitialized = "initialized"
	StatusInProgress  = "in_progress"
	StatusPaused      = "paused"
	StatusCompleted   = "completed"
	StatusFailed      = "failed"
)

const checkpointLimit = 10

// snapshotSchemaVersion tags the current on-disk layout. Version 1 is the
// flat downloaded-list layout older exporters wrote.
const snapshotSchemaVersion = 2

// SessionInfo identifies one tracked run.
type SessionInfo struct {
	StartTime  time.Time `json:"start_time"`
	LastUpdate time.Time `json:"last_update"`
	Status     string    `json:"status"`
	SessionID  string    `json:"session_id"`
	Type       string    `json:"type"`
}

// OverallStats counts skills.
type OverallStats struct {
	TotalSkills     int    `json:"total_skills"`
	CompletedSkills int    `json:"completed_skills"`
	InProgressSkill string `json:"in_progress_skill"`
	FailedSkills    int    `json:"failed_skills"`
	SkippedSkills   int    `json:"skipped_skills"`
}

// BooksStats counts books.
type BooksStats struct {
	TotalBooksDiscovered int `json:"total_books_discovered"`
	DownloadedBooks      int `json:"downloaded_books"`
	FailedBooks          int `json:"failed_books"`
	SkippedBooks         int `json:"skipped_books"`
}

// Performance holds derived throughput figures.
type Performance struct {
	AverageItemsPerMinute         float64   `json:"average_items_per_minute"`
	EstimatedTimeRemainingMinutes int       `json:"estimated_time_remaining_minutes"`
	TotalElapsedSeconds           float64   `json:"total_elapsed_seconds"`
	LastSpeedCheck                time.Time `json:"last_speed_check"`
}

// CurrentActivity names what the run is working on right now.
type CurrentActivity struct {
	CurrentSkill         string `json:"current_skill"`
	CurrentSkillProgress string `json:"current_skill_progress"`
	CurrentItem          string `json:"current_item"`
	CurrentItemID        string `json:"current_item_id"`
}

// Checkpoint is one entry of the bounded checkpoint ring.
type Checkpoint struct {
	Timestamp       time.Time `json:"timestamp"`
	CompletedItems  int       `json:"completed_items"`
	CompletedSkills int       `json:"completed_skills"`
	FailedItems     int       `json:"failed_items"`
}

// Snapshot is the persisted progress document. Unknown top-level fields from
// newer writers survive a load/save round trip.
type Snapshot struct {
	SchemaVersion   int               `json:"schema_version"`
	Session         SessionInfo       `json:"session"`
	OverallStats    OverallStats      `json:"overall_stats"`
	BooksStats      BooksStats        `json:"books_stats"`
	Performance     Performance       `json:"performance"`
	CurrentActivity CurrentActivity   `json:"current_activity"`
	CompletedItems  []string          `json:"completed_items"`
	FailedItems     map[string]string `json:"failed_items"`
	SkillsCompleted []string          `json:"skills_completed"`
	SkillsPending   []string          `json:"skills_pending"`
	Checkpoints     []Checkpoint      `json:"checkpoints"`

	extra map[string]json.RawMessage
}

// knownSnapshotKeys are the fields this writer owns; anything else rides
// along in extra.
var knownSnapshotKeys = map[string]bool{
	"schema_version": true, "session": true, "overall_stats": true,
	"books_stats": true, "performance": true, "current_activity": true,
	"completed_items": true, "failed_items": true, "skills_completed": true,
	"skills_pending": true, "checkpoints": true,
}

type snapshotAlias Snapshot

func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var alias snapshotAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key := range raw {
		if knownSnapshotKeys[key] {
			delete(raw, key)
		}
	}

	*s = Snapshot(alias)
	if len(raw) > 0 {
		s.extra = raw
	}
	return nil
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(snapshotAlias(s))
	if err != nil {
		return nil, err
	}
	if len(s.extra) == 0 {
		return data, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for key, value := range s.extra {
		merged[key] = value
	}
	return json.Marshal(merged)
}

// legacySnapshot is the minimal pre-session schema still found on disk.
type legacySnapshot struct {
	Downloaded []string          `json:"downloaded"`
	Failed     map[string]string `json:"failed"`
	Timestamp  float64           `json:"timestamp"`
}

// Tracker serializes mutations to one snapshot and persists after each.
type Tracker struct {
	mu     sync.Mutex
	path   string
	snap   *Snapshot
	live   *LiveWriter
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLiveWriter attaches the plain-text live view.
func WithLiveWriter(lw *LiveWriter) Option {
	return func(t *Tracker) { t.live = lw }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// Open loads the snapshot at path, migrating legacy layouts, or starts a
// fresh one if the file is absent or unreadable. sessionType is "download"
// or "discovery".
func Open(path, sessionType string, logger *slog.Logger, opts ...Option) (*Tracker, error) {
	t := &Tracker{
		path:   path,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		snap, migrated := parseSnapshot(data, sessionType, t.now)
		t.snap = snap
		if migrated {
			logger.Info("migrated legacy progress snapshot", "path", path)
		}
	case os.IsNotExist(err):
		t.snap = newSnapshot(sessionType, t.now())
	default:
		return nil, fmt.Errorf("failed to read progress snapshot: %w", err)
	}

	return t, nil
}

func newSnapshot(sessionType string, now time.Time) *Snapshot {
	return &Snapshot{
		SchemaVersion: snapshotSchemaVersion,
		Session: SessionInfo{
			StartTime:  now,
			LastUpdate: now,
			Status:     StatusInitialized,
			SessionID:  uuid.New().String(),
			Type:       sessionType,
		},
		Performance:    Performance{LastSpeedCheck: now},
		CompletedItems: []string{},
		FailedItems:    map[string]string{},
	}
}

// parseSnapshot decodes a snapshot, routing by its schema version tag.
// Corrupt data falls back to a fresh snapshot.
func parseSnapshot(data []byte, sessionType string, now func() time.Time) (*Snapshot, bool) {
	var probe struct {
		SchemaVersion int             `json:"schema_version"`
		Session       json.RawMessage `json:"session"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return newSnapshot(sessionType, now()), false
	}

	version := probe.SchemaVersion
	if version == 0 {
		// Untagged files predate the version field. The session block
		// separates the current layout from the legacy flat one.
		version = 1
		if probe.Session != nil {
			version = snapshotSchemaVersion
		}
	}

	if version == 1 {
		return migrateV1(data, sessionType, now)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return newSnapshot(sessionType, now()), false
	}
	snap.SchemaVersion = snapshotSchemaVersion
	if snap.FailedItems == nil {
		snap.FailedItems = map[string]string{}
	}
	if snap.CompletedItems == nil {
		snap.CompletedItems = []string{}
	}
	return &snap, false
}

// migrateV1 upgrades the flat downloaded-list layout to the current schema.
func migrateV1(data []byte, sessionType string, now func() time.Time) (*Snapshot, bool) {
	var legacy legacySnapshot
	if err := json.Unmarshal(data, &legacy); err != nil {
		return newSnapshot(sessionType, now()), false
	}

	snap := newSnapshot(sessionType, now())
	if len(legacy.Downloaded) > 0 {
		snap.CompletedItems = legacy.Downloaded
		snap.BooksStats.DownloadedBooks = len(legacy.Downloaded)
	}
	if len(legacy.Failed) > 0 {
		snap.FailedItems = legacy.Failed
		snap.BooksStats.FailedBooks = len(legacy.Failed)
	}
	if legacy.Timestamp > 0 {
		snap.Session.LastUpdate = time.Unix(int64(legacy.Timestamp), 0)
	}
	return snap, true
}

// StartSession begins a run with the given totals.
func (t *Tracker) StartSession(totalSkills, totalBooks int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.snap.Session.Status = StatusInProgress
	t.snap.Session.StartTime = t.now()
	t.snap.OverallStats.TotalSkills = totalSkills
	t.snap.BooksStats.TotalBooksDiscovered = totalBooks
	return t.persist()
}

// AddDiscoveredBooks grows the discovered-book total as skills land.
func (t *Tracker) AddDiscoveredBooks(n int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.snap.BooksStats.TotalBooksDiscovered += n
	return t.persist()
}

// PauseSession marks the run paused.
func (t *Tracker) PauseSession() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Session.Status = StatusPaused
	return t.persist()
}

// ResumeSession marks the run in progress again.
func (t *Tracker) ResumeSession() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Session.Status = StatusInProgress
	return t.persist()
}

// CompleteSession marks the run completed.
func (t *Tracker) CompleteSession() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Session.Status = StatusCompleted
	return t.persist()
}

// UpdateCurrentSkill records the skill in progress and its position.
func (t *Tracker) UpdateCurrentSkill(name string, current, total int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.snap.CurrentActivity.CurrentSkill = name
	t.snap.CurrentActivity.CurrentSkillProgress = fmt.Sprintf("%d/%d", current, total)
	t.snap.OverallStats.InProgressSkill = name
	return t.persist()
}

// UpdateCurrentItem records the book being processed.
func (t *Tracker) UpdateCurrentItem(title, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.snap.CurrentActivity.CurrentItem = title
	t.snap.CurrentActivity.CurrentItemID = id
	return t.persist()
}

// MarkCompleted records a finished book and clears any earlier failure.
func (t *Tracker) MarkCompleted(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !containsString(t.snap.CompletedItems, id) {
		t.snap.CompletedItems = append(t.snap.CompletedItems, id)
		t.snap.BooksStats.DownloadedBooks++
	}
	if _, failed := t.snap.FailedItems[id]; failed {
		delete(t.snap.FailedItems, id)
		t.snap.BooksStats.FailedBooks = len(t.snap.FailedItems)
	}
	return t.persist()
}

// MarkSkipped records a book satisfied by an existing EPUB on disk.
func (t *Tracker) MarkSkipped(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !containsString(t.snap.CompletedItems, id) {
		t.snap.CompletedItems = append(t.snap.CompletedItems, id)
	}
	t.snap.BooksStats.SkippedBooks++
	if _, failed := t.snap.FailedItems[id]; failed {
		delete(t.snap.FailedItems, id)
		t.snap.BooksStats.FailedBooks = len(t.snap.FailedItems)
	}
	return t.persist()
}

// MarkFailed records a failed book with its error.
func (t *Tracker) MarkFailed(id, errMsg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.snap.FailedItems[id] = errMsg
	t.snap.BooksStats.FailedBooks = len(t.snap.FailedItems)
	return t.persist()
}

// MarkSkillCompleted moves a skill from pending to completed and clears any
// earlier failure recorded under the same name.
func (t *Tracker) MarkSkillCompleted(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !containsString(t.snap.SkillsCompleted, name) {
		t.snap.SkillsCompleted = append(t.snap.SkillsCompleted, name)
		t.snap.OverallStats.CompletedSkills = len(t.snap.SkillsCompleted)
	}
	if _, failed := t.snap.FailedItems[name]; failed {
		delete(t.snap.FailedItems, name)
		t.snap.OverallStats.FailedSkills = len(t.snap.FailedItems)
	}
	t.snap.SkillsPending = removeString(t.snap.SkillsPending, name)
	t.snap.CurrentActivity.CurrentSkill = ""
	t.snap.OverallStats.InProgressSkill = ""
	return t.persist()
}

// MarkSkillFailed records a failed skill with its error. Discovery sessions
// key the failed map by skill name.
func (t *Tracker) MarkSkillFailed(name, errMsg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.snap.FailedItems[name] = errMsg
	t.snap.OverallStats.FailedSkills = len(t.snap.FailedItems)
	t.snap.SkillsPending = removeString(t.snap.SkillsPending, name)
	return t.persist()
}

// MarkSkillSkipped counts a skill that was skipped rather than searched.
func (t *Tracker) MarkSkillSkipped(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.snap.OverallStats.SkippedSkills++
	t.snap.SkillsPending = removeString(t.snap.SkillsPending, name)
	return t.persist()
}

// SetPendingSkills replaces the pending list, excluding already completed
// skills.
func (t *Tracker) SetPendingSkills(names []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	pending := make([]string, 0, len(names))
	for _, name := range names {
		if !containsString(t.snap.SkillsCompleted, name) {
			pending = append(pending, name)
		}
	}
	t.snap.SkillsPending = pending
	return t.persist()
}

// CreateCheckpoint snapshots the counters into the ring, keeping the last
// ten entries.
func (t *Tracker) CreateCheckpoint() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.snap.Checkpoints = append(t.snap.Checkpoints, Checkpoint{
		Timestamp:       t.now(),
		CompletedItems:  len(t.snap.CompletedItems),
		CompletedSkills: len(t.snap.SkillsCompleted),
		FailedItems:     len(t.snap.FailedItems),
	})
	if n := len(t.snap.Checkpoints); n > checkpointLimit {
		t.snap.Checkpoints = t.snap.Checkpoints[n-checkpointLimit:]
	}
	return t.persist()
}

// IsCompleted reports whether the id is already recorded as completed.
func (t *Tracker) IsCompleted(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return containsString(t.snap.CompletedItems, id)
}

// Snapshot returns a deep copy for reporting.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := *t.snap
	snap.CompletedItems = append([]string(nil), t.snap.CompletedItems...)
	snap.SkillsCompleted = append([]string(nil), t.snap.SkillsCompleted...)
	snap.SkillsPending = append([]string(nil), t.snap.SkillsPending...)
	snap.Checkpoints = append([]Checkpoint(nil), t.snap.Checkpoints...)
	snap.FailedItems = make(map[string]string, len(t.snap.FailedItems))
	for k, v := range t.snap.FailedItems {
		snap.FailedItems[k] = v
	}
	return snap
}

// persist recomputes derived stats, stamps the update time, rewrites the
// snapshot atomically, and refreshes the live view. Callers hold the mutex.
func (t *Tracker) persist() error {
	now := t.now()
	t.snap.Session.LastUpdate = now
	t.recomputePerformance(now)

	data, err := json.MarshalIndent(t.snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal progress snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return fmt.Errorf("failed to create progress directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(t.path), ".progress-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp progress file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write progress snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp progress file: %w", err)
	}
	if err := os.Rename(tmpName, t.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace progress snapshot: %w", err)
	}

	if t.live != nil {
		if err := t.live.Write(t.snap); err != nil {
			t.logger.Warn("failed to refresh live stats", "error", err)
		}
	}
	return nil
}

// recomputePerformance refreshes elapsed time, rate, and ETA.
func (t *Tracker) recomputePerformance(now time.Time) {
	elapsed := now.Sub(t.snap.Session.StartTime).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	t.snap.Performance.TotalElapsedSeconds = elapsed
	t.snap.Performance.LastSpeedCheck = now

	completed := len(t.snap.CompletedItems)
	if elapsed > 0 && completed > 0 {
		perMinute := float64(completed) / elapsed * 60
		t.snap.Performance.AverageItemsPerMinute = math.Round(perMinute*100) / 100

		remaining := t.snap.BooksStats.TotalBooksDiscovered - completed
		if perMinute > 0 && remaining > 0 {
			t.snap.Performance.EstimatedTimeRemainingMinutes = int(math.Round(float64(remaining) / perMinute))
		} else {
			t.snap.Performance.EstimatedTimeRemainingMinutes = 0
		}
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
