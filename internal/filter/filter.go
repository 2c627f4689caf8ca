// Package filter decides which raw search items are real books. The pipeline
// runs ordered stages; the first stage that rejects an item records why, so
// discovery can report filtered counts by reason.
package filter

import (
	"strings"
	"unicode"

	"github.com/jackzampolin/skillshelf/internal/config"
	"github.com/jackzampolin/skillshelf/internal/oreilly"
)

// Stage identifies the pipeline stage that rejected an item.
type Stage string

const (
	StageFormat       Stage = "format"
	StageLanguage     Stage = "language"
	StageTitleLength  Stage = "title_length"
	StageChapterTitle Stage = "chapter_title"
	StageNumericTitle Stage = "numeric_title"
	StageNoISBN       Stage = "no_isbn"
	StageTopicMatch   Stage = "topic_match"
	StageDuplicate    Stage = "duplicate"
)

// Verdict is the outcome of running one item through the pipeline.
type Verdict struct {
	Keep  bool
	Stage Stage
	Title string
}

// chapterPatterns are substrings that mark per-chapter or front/back-matter
// records masquerading as books.
var chapterPatterns = []string{
	"chapter 1:", "chapter 2:", "chapter 3:", "chapter 4:", "chapter 5:",
	"chapter 6:", "chapter 7:", "chapter 8:", "chapter 9:", "chapter 10:",
	"part i:", "part ii:", "part iii:", "part iv:", "part v:",
	"part 1:", "part 2:", "part 3:", "part 4:", "part 5:",
	"section 1:", "section 2:", "section 3:", "section 4:", "section 5:",
	"lesson 1:", "lesson 2:", "lesson 3:", "lesson 4:", "lesson 5:",
	"unit 1:", "unit 2:", "unit 3:", "unit 4:", "unit 5:",
	"exam ref", "certification", "study guide", "practice test",
	"appendix", "glossary", "index", "bibliography",
	"closing thoughts", "conclusion", "summary", "wrap-up",
	"introduction", "preface", "foreword", "acknowledgments",
}

// subUnitPrefixes mark titles that are structural sub-units of a book.
var subUnitPrefixes = []string{"chapter ", "section ", "lesson ", "unit ", "module "}

// nonBookKeywords disqualify ISBN-less items.
var nonBookKeywords = []string{
	"chapter", "part", "section", "lesson", "unit", "module",
	"video", "course", "tutorial", "workshop", "webinar", "audiobook",
}

// Pipeline filters raw search items for one skill.
type Pipeline struct {
	cfg    config.FilterCfg
	strict bool
	skill  string
	// variants are the lowercase topic variants accepted by the
	// topic-match stage in strict mode.
	variants []string
	seen     map[string]struct{}
}

// New creates a pipeline for one skill. variants should include the skill
// itself. In lenient mode the topic-match stage is skipped.
func New(cfg config.FilterCfg, skill string, variants []string, strict bool) *Pipeline {
	lower := make([]string, 0, len(variants)+1)
	lower = append(lower, strings.ToLower(skill))
	for _, v := range variants {
		if v != "" {
			lower = append(lower, strings.ToLower(v))
		}
	}

	return &Pipeline{
		cfg:      cfg,
		strict:   strict,
		skill:    skill,
		variants: lower,
		seen:     make(map[string]struct{}),
	}
}

// Check runs one item through every stage in order and returns the verdict.
// The pipeline is pure apart from the duplicate accumulator.
func (p *Pipeline) Check(item *oreilly.SearchItem) Verdict {
	title := strings.TrimSpace(item.Title)

	for _, stage := range []struct {
		id     Stage
		reject func(*oreilly.SearchItem, string) bool
	}{
		{StageFormat, p.rejectFormat},
		{StageLanguage, p.rejectLanguage},
		{StageTitleLength, p.rejectTitleLength},
		{StageChapterTitle, p.rejectChapterTitle},
		{StageNumericTitle, p.rejectNumericTitle},
		{StageNoISBN, p.rejectNoISBN},
		{StageTopicMatch, p.rejectTopicMatch},
		{StageDuplicate, p.rejectDuplicate},
	} {
		if stage.reject(item, title) {
			return Verdict{Keep: false, Stage: stage.id, Title: item.Title}
		}
	}

	return Verdict{Keep: true, Title: item.Title}
}

// Seen returns the number of unique identifiers accepted so far.
func (p *Pipeline) Seen() int {
	return len(p.seen)
}

// rejectFormat keeps only book-shaped items. Both format tags must agree.
func (p *Pipeline) rejectFormat(item *oreilly.SearchItem, _ string) bool {
	return !isBookFormat(item.Format) || !isBookFormat(item.ContentFormat) || !isBookFormat(item.ContentType)
}

func isBookFormat(tag string) bool {
	switch strings.ToLower(tag) {
	case "", "book", "ebook":
		return true
	}
	return false
}

// rejectLanguage keeps English and untagged items. Regional variants like
// en-US and en-GB pass.
func (p *Pipeline) rejectLanguage(item *oreilly.SearchItem, _ string) bool {
	lang := strings.ToLower(item.Language)
	if lang == "" || lang == "english" {
		return false
	}
	return !strings.HasPrefix(lang, "en")
}

// rejectTitleLength drops very short titles, and short titles lacking an
// ISBN to vouch for them.
func (p *Pipeline) rejectTitleLength(item *oreilly.SearchItem, title string) bool {
	if len(title) < p.cfg.MinTitleLen {
		return true
	}
	return len(title) < p.cfg.ShortTitleLen && !item.HasISBN()
}

// rejectChapterTitle drops titles matching chapter or front/back-matter
// patterns, and titles starting with a structural sub-unit marker.
func (p *Pipeline) rejectChapterTitle(_ *oreilly.SearchItem, title string) bool {
	lower := strings.ToLower(title)
	for _, pattern := range chapterPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	for _, prefix := range subUnitPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// rejectNumericTitle drops trivially numbered entries like "3" and
// "1. Introduction".
func (p *Pipeline) rejectNumericTitle(_ *oreilly.SearchItem, title string) bool {
	if title == "" {
		return false
	}
	if len(title) <= p.cfg.MinTitleLen && isDigits(title) {
		return true
	}
	if unicode.IsDigit(rune(title[0])) {
		words := len(strings.Fields(title))
		if words <= 3 && (strings.Contains(title, ".") || strings.Count(title, " ") <= 2) {
			return true
		}
	}
	return false
}

// rejectNoISBN drops ISBN-less items unless the title is long enough to be a
// book and free of non-book keywords.
func (p *Pipeline) rejectNoISBN(item *oreilly.SearchItem, title string) bool {
	if item.HasISBN() {
		return false
	}
	if len(title) < p.cfg.LongTitleLen {
		return true
	}
	lower := strings.ToLower(title)
	for _, kw := range nonBookKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// rejectTopicMatch requires, in strict mode, that an item declaring topics
// names the skill or one of its variants. Items without a topic list pass.
func (p *Pipeline) rejectTopicMatch(item *oreilly.SearchItem, _ string) bool {
	if !p.strict {
		return false
	}
	topics := item.TopicNames()
	if len(topics) == 0 {
		return false
	}
	for _, topic := range topics {
		lower := strings.ToLower(topic)
		for _, variant := range p.variants {
			if strings.Contains(lower, variant) || strings.Contains(variant, lower) {
				return false
			}
		}
	}
	return true
}

// rejectDuplicate drops identifiers already accepted in this run.
func (p *Pipeline) rejectDuplicate(item *oreilly.SearchItem, _ string) bool {
	id := item.ID()
	if id == "" {
		return true
	}
	if _, dup := p.seen[id]; dup {
		return true
	}
	p.seen[id] = struct{}{}
	return false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
