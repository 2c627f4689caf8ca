package progress

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const bannerWidth = 60

// LiveWriter maintains the plain-text progress file meant for tail -f.
// The file is rewritten whole on every update.
type LiveWriter struct {
	path string
	now  func() time.Time
}

// NewLiveWriter creates a writer targeting path.
func NewLiveWriter(path string) *LiveWriter {
	return &LiveWriter{path: path, now: time.Now}
}

// Write renders the snapshot into the live file.
func (lw *LiveWriter) Write(snap *Snapshot) error {
	var b strings.Builder
	banner := strings.Repeat("=", bannerWidth)

	processed := snap.BooksStats.DownloadedBooks + snap.BooksStats.SkippedBooks + snap.BooksStats.FailedBooks
	pct := 0.0
	if snap.BooksStats.TotalBooksDiscovered > 0 {
		pct = float64(processed) / float64(snap.BooksStats.TotalBooksDiscovered) * 100
	}

	currentSkill := snap.CurrentActivity.CurrentSkill
	if currentSkill == "" {
		currentSkill = "Initializing..."
	}

	fmt.Fprintf(&b, "%s\n", banner)
	fmt.Fprintf(&b, "O'Reilly Books Download Progress\n")
	fmt.Fprintf(&b, "%s\n", banner)
	fmt.Fprintf(&b, "Status: %s\n", liveStatus(snap.Session.Status, pct))
	fmt.Fprintf(&b, "Started: %s\n", snap.Session.StartTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Current Skill: %s\n", currentSkill)
	fmt.Fprintf(&b, "Total Books: %s\n", commas(snap.BooksStats.TotalBooksDiscovered))
	fmt.Fprintf(&b, "Downloaded: %s\n", commas(snap.BooksStats.DownloadedBooks))
	fmt.Fprintf(&b, "Failed: %s\n", commas(snap.BooksStats.FailedBooks))
	fmt.Fprintf(&b, "Skipped: %s\n", commas(snap.BooksStats.SkippedBooks))
	fmt.Fprintf(&b, "Progress: %.1f%%\n", pct)
	fmt.Fprintf(&b, "Elapsed: %s\n", FormatDuration(snap.Performance.TotalElapsedSeconds))
	fmt.Fprintf(&b, "ETA: %s\n", liveETA(snap, pct))
	fmt.Fprintf(&b, "%s\n", banner)
	fmt.Fprintf(&b, "Last Updated: %s\n", lw.now().Format("2006-01-02 15:04:05"))

	return os.WriteFile(lw.path, []byte(b.String()), 0o644)
}

// Finalize appends the end-of-run summary below the live block.
func (lw *LiveWriter) Finalize(snap *Snapshot) error {
	if err := lw.Write(snap); err != nil {
		return err
	}

	f, err := os.OpenFile(lw.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	banner := strings.Repeat("=", bannerWidth)
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n", banner)
	fmt.Fprintf(&b, "FINAL SUMMARY\n")
	fmt.Fprintf(&b, "%s\n", banner)
	fmt.Fprintf(&b, "Skills Processed: %d\n", snap.OverallStats.CompletedSkills)
	fmt.Fprintf(&b, "Total Books: %s\n", commas(snap.BooksStats.TotalBooksDiscovered))
	fmt.Fprintf(&b, "Successfully Downloaded: %s\n", commas(snap.BooksStats.DownloadedBooks))
	fmt.Fprintf(&b, "Failed Downloads: %s\n", commas(snap.BooksStats.FailedBooks))
	fmt.Fprintf(&b, "Skipped (Already Downloaded): %s\n", commas(snap.BooksStats.SkippedBooks))
	fmt.Fprintf(&b, "Total Time: %s\n", FormatDuration(snap.Performance.TotalElapsedSeconds))
	fmt.Fprintf(&b, "%s\n", banner)

	_, err = f.WriteString(b.String())
	return err
}

func liveStatus(status string, pct float64) string {
	switch status {
	case StatusInitialized:
		return "Initializing..."
	case StatusPaused:
		return "Paused"
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	default:
		if pct >= 100 {
			return "Completed"
		}
		return "Running"
	}
}

func liveETA(snap *Snapshot, pct float64) string {
	if pct >= 100 {
		return "Completed"
	}

	processed := snap.BooksStats.DownloadedBooks + snap.BooksStats.SkippedBooks + snap.BooksStats.FailedBooks
	elapsed := snap.Performance.TotalElapsedSeconds
	if processed == 0 || elapsed <= 0 {
		return "Calculating..."
	}

	rate := float64(processed) / elapsed
	remaining := float64(snap.BooksStats.TotalBooksDiscovered - processed)
	if rate <= 0 || remaining <= 0 {
		return "Calculating..."
	}
	return FormatDuration(remaining / rate)
}

// FormatDuration renders seconds as HH:MM:SS.
func FormatDuration(seconds float64) string {
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// commas formats n with thousands separators.
func commas(n int) string {
	s := fmt.Sprintf("%d", n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)

	out := strings.Join(parts, ",")
	if neg {
		out = "-" + out
	}
	return out
}
