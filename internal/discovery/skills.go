package discovery

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Skill is one discovery target. Expected is the book count hint from the
// skills list, zero when the list carries no counts.
type Skill struct {
	Name     string
	Expected int
}

// LoadSkills reads a skills list. Three layouts are accepted: a JSON object
// with a "skills" array of {title, books} records, a JSON map of skill
// names, and a plain text file with one skill per line (# comments skipped).
// The returned catalog lists every known skill name for variant matching;
// counted reports whether the list carried expected counts.
func LoadSkills(path string) (skills []Skill, catalog []string, counted bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, false, fmt.Errorf("failed to read skills list: %w", err)
	}

	if strings.HasSuffix(strings.ToLower(path), ".json") {
		return parseJSONSkills(path, data)
	}
	return parseTextSkills(data)
}

func parseJSONSkills(path string, data []byte) ([]Skill, []string, bool, error) {
	var probe struct {
		Skills []struct {
			Title string `json:"title"`
			Books int    `json:"books"`
		} `json:"skills"`
	}
	if err := json.Unmarshal(data, &probe); err == nil && len(probe.Skills) > 0 {
		skills := make([]Skill, 0, len(probe.Skills))
		catalog := make([]string, 0, len(probe.Skills))
		for _, s := range probe.Skills {
			name := strings.TrimSpace(s.Title)
			if name == "" {
				continue
			}
			skills = append(skills, Skill{Name: name, Expected: s.Books})
			catalog = append(catalog, name)
		}
		return skills, catalog, true, nil
	}

	// Facets layout: a flat map of skill names, no counts.
	var facets map[string]string
	if err := json.Unmarshal(data, &facets); err != nil {
		return nil, nil, false, fmt.Errorf("unrecognized skills list layout in %s: %w", path, err)
	}
	names := make([]string, 0, len(facets))
	for _, name := range facets {
		name = strings.TrimSpace(name)
		if name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	skills := make([]Skill, 0, len(names))
	for _, name := range names {
		skills = append(skills, Skill{Name: name})
	}
	return skills, names, false, nil
}

func parseTextSkills(data []byte) ([]Skill, []string, bool, error) {
	var skills []Skill
	var catalog []string
	for _, line := range strings.Split(string(data), "\n") {
		name := strings.TrimSpace(line)
		if name == "" || strings.HasPrefix(name, "#") {
			continue
		}
		skills = append(skills, Skill{Name: name})
		catalog = append(catalog, name)
	}
	if len(skills) == 0 {
		return nil, nil, false, fmt.Errorf("skills list is empty")
	}
	return skills, catalog, false, nil
}
