package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// walkState is the persisted resume point of a catalog walk.
type walkState struct {
	LastCompletedPage int      `json:"last_completed_page"`
	DiscoveredIDs     []string `json:"discovered_book_ids"`
	Duplicates        int      `json:"duplicates_skipped"`
	TotalBooks        int      `json:"total_books_discovered"`
	Topics            []string `json:"topics_created"`
	Timestamp         float64  `json:"timestamp"`
}

// loadState reads the walk state at path. A missing file yields a fresh
// state. Corrupt JSON is an error rather than a silent restart: losing the
// dedup set would re-add thousands of books.
func loadState(path string) (*walkState, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &walkState{}, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read walk state: %w", err)
	}

	var st walkState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, false, fmt.Errorf("walk state %s is corrupt: %w", filepath.Base(path), err)
	}
	return &st, true, nil
}

// saveState writes the walk state atomically.
func saveState(path string, st *walkState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal walk state: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create walk state directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".catalog-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp walk state: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write walk state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp walk state: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace walk state: %w", err)
	}
	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
