// Package skillfile reads and writes the per-skill discovery result files
// that connect the two phases: discovery writes one file per skill, download
// consumes them. Files are validated against an embedded JSON schema on load
// so a truncated or hand-edited file fails loudly instead of mid-run.
package skillfile

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/jackzampolin/skillshelf/internal/oreilly"
)

//go:embed skillfile.schema.json
var schemaJSON string

var fileSchema = jsonschema.MustCompileString("skillfile.schema.json", schemaJSON)

// Suffix is the file name suffix shared by every per-skill result file.
const Suffix = "_books.json"

// Book is one discovered book record. The id field historically carried a
// full API URL; BookID handles both shapes.
type Book struct {
	Title  string `json:"title"`
	ID     string `json:"id"`
	URL    string `json:"url"`
	ISBN   string `json:"isbn"`
	Format string `json:"format"`
}

// BookID returns the bare book identifier, stripping any API URL wrapping.
func (b *Book) BookID() string {
	id := strings.TrimRight(strings.TrimSpace(b.ID), "/")
	if i := strings.LastIndex(id, "/"); i >= 0 {
		id = id[i+1:]
	}
	return id
}

// RecordFromItem converts a kept search item into the result file record
// shape, applying the historical fallbacks: the ISBN defaults to the
// identifier, the format to "book", and the URL to the book API endpoint.
func RecordFromItem(item *oreilly.SearchItem) Book {
	id := item.ID()
	isbn := strings.TrimSpace(item.ISBN)
	if !item.HasISBN() {
		isbn = id
	}
	format := item.Format
	if format == "" {
		format = "book"
	}
	url := item.URL
	if url == "" {
		url = fmt.Sprintf("https://learning.oreilly.com/api/v1/book/%s/", id)
	}
	return Book{
		Title:  strings.TrimSpace(item.Title),
		ID:     id,
		URL:    url,
		ISBN:   isbn,
		Format: format,
	}
}

// File is one per-skill discovery result document.
type File struct {
	SkillName          string  `json:"skill_name"`
	DiscoveryTimestamp float64 `json:"discovery_timestamp"`
	TotalBooks         int     `json:"total_books"`
	Books              []Book  `json:"books"`
}

// Load reads and schema-validates one result file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read skill file: %w", err)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("skill file %s is not valid JSON: %w", filepath.Base(path), err)
	}
	if err := fileSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("skill file %s failed validation: %w", filepath.Base(path), err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode skill file %s: %w", filepath.Base(path), err)
	}
	return &f, nil
}

// Save writes the file atomically: temp file in the target directory, then
// rename.
func Save(path string, f *File) error {
	f.TotalBooks = len(f.Books)
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal skill file: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create skill file directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".skillfile-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp skill file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write skill file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp skill file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace skill file: %w", err)
	}
	return nil
}

// SanitizeName returns the file-name form of a skill: lowercased, separators
// and punctuation collapsed to single underscores.
func SanitizeName(skill string) string {
	sanitized := strings.ToLower(strings.TrimSpace(skill))
	sanitized = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '/', '\\', ':', '*', '?', '"', '<', '>', '|', '&', '-', '(', ')', '.', ',', '+', '=':
			return '_'
		}
		return r
	}, sanitized)
	for strings.Contains(sanitized, "__") {
		sanitized = strings.ReplaceAll(sanitized, "__", "_")
	}
	return strings.Trim(sanitized, "_")
}

// FileName returns the result file name for a skill.
func FileName(skill string) string {
	return SanitizeName(skill) + Suffix
}

// List returns the paths of every result file under dir in name order.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list skill files: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), Suffix) {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	return paths, nil
}
