package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the skillshelf home directory.
	DefaultDirName = ".skillshelf"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// CookiesFileName is the credential bundle file name.
	CookiesFileName = "cookies.json"
)

// Dir represents the skillshelf home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.skillshelf).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// CookiesPath returns the path to the credential bundle file.
func (d *Dir) CookiesPath() string {
	return filepath.Join(d.path, CookiesFileName)
}

// SkillsDir returns the directory holding skill input lists.
func (d *Dir) SkillsDir() string {
	return filepath.Join(d.path, "skills")
}

// SkillFilesDir returns the directory holding per-skill discovery result files.
func (d *Dir) SkillFilesDir() string {
	return filepath.Join(d.path, "book_ids")
}

// SkillFilePath returns the result file path for a sanitized skill name.
func (d *Dir) SkillFilePath(sanitizedSkill string) string {
	return filepath.Join(d.SkillFilesDir(), sanitizedSkill+"_books.json")
}

// BooksDir returns the root of the EPUB output tree.
func (d *Dir) BooksDir() string {
	return filepath.Join(d.path, "books")
}

// SkillBooksDir returns the output directory for one skill's books.
func (d *Dir) SkillBooksDir(skillDir string) string {
	return filepath.Join(d.BooksDir(), skillDir)
}

// ProgressDir returns the directory holding progress state.
func (d *Dir) ProgressDir() string {
	return filepath.Join(d.path, "progress")
}

// ProgressPath returns the path to the download progress snapshot.
func (d *Dir) ProgressPath() string {
	return filepath.Join(d.ProgressDir(), "download_progress.json")
}

// LiveStatsPath returns the path to the tail-friendly live stats file.
func (d *Dir) LiveStatsPath() string {
	return filepath.Join(d.ProgressDir(), "download_progress_live.txt")
}

// DiscoveryProgressPath returns the path to the discovery progress snapshot.
func (d *Dir) DiscoveryProgressPath() string {
	return filepath.Join(d.ProgressDir(), "discovery_progress.json")
}

// CatalogWalkPath returns the path to the catalog walk progress file.
func (d *Dir) CatalogWalkPath() string {
	return filepath.Join(d.ProgressDir(), "catalog_walk.json")
}

// CatalogSummaryPath returns the path to the catalog walk summary text file.
func (d *Dir) CatalogSummaryPath() string {
	return filepath.Join(d.ProgressDir(), "catalog_summary.txt")
}

// LogsDir returns the directory for rotating log files.
func (d *Dir) LogsDir() string {
	return filepath.Join(d.path, "logs")
}

// LogPath returns the path for a named log file.
func (d *Dir) LogPath(name string) string {
	return filepath.Join(d.LogsDir(), name)
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	for _, dir := range []string{
		d.SkillsDir(),
		d.SkillFilesDir(),
		d.BooksDir(),
		d.ProgressDir(),
		d.LogsDir(),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}

// CookiesExist returns true if the credential bundle file exists.
func (d *Dir) CookiesExist() bool {
	_, err := os.Stat(d.CookiesPath())
	return err == nil
}
