package discovery

import "strings"

// maxVariants caps the topic variants queried per skill.
const maxVariants = 5

// Variants returns the topic names queried for one skill: the name itself,
// mechanical separator rewrites, and in lenient mode configured aliases plus
// catalog names sharing a token with the skill.
func Variants(skill string, aliases, catalog []string, lenient bool) []string {
	variants := make([]string, 0, maxVariants)
	seen := make(map[string]struct{}, maxVariants)
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" || len(variants) >= maxVariants {
			return
		}
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		variants = append(variants, name)
	}

	add(skill)
	if strings.Contains(skill, " ") {
		add(strings.ReplaceAll(skill, " ", "-"))
		add(strings.ReplaceAll(skill, " ", "_"))
		add(strings.ReplaceAll(skill, " ", "+"))
	}
	if lenient {
		for _, alias := range aliases {
			add(alias)
		}
		for _, name := range catalogCandidates(skill, catalog) {
			add(name)
		}
	}
	return variants
}

// catalogCandidates returns catalog names sharing a meaningful token with
// the skill, in catalog order.
func catalogCandidates(skill string, catalog []string) []string {
	skillLower := strings.ToLower(skill)
	normalized := strings.NewReplacer("&", " ", "/", " ").Replace(skillLower)
	var tokens []string
	for _, tok := range strings.Fields(normalized) {
		if len(tok) >= 3 {
			tokens = append(tokens, tok)
		}
	}

	var out []string
	for _, name := range catalog {
		if strings.EqualFold(name, skill) {
			continue
		}
		lower := strings.ToLower(name)
		if containsAnyOf(lower, tokens) || containsAnyWord(skillLower, lower) {
			out = append(out, name)
		}
	}
	return out
}

func containsAnyOf(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// containsAnyWord reports whether any word of name appears inside skill.
func containsAnyWord(skill, name string) bool {
	for _, w := range strings.Fields(name) {
		if strings.Contains(skill, w) {
			return true
		}
	}
	return false
}
