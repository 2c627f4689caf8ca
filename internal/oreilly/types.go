package oreilly

import (
	"encoding/json"
	"strings"
)

// SearchItem is one raw result from either search endpoint. Fields the two
// API generations disagree on are normalized by accessors rather than during
// decoding so the filter pipeline can log original values.
type SearchItem struct {
	ArchiveID     string   `json:"archive_id"`
	ISBN          string   `json:"isbn"`
	OURN          string   `json:"ourn"`
	Title         string   `json:"title"`
	Format        string   `json:"format"`
	ContentFormat string   `json:"content_format"`
	ContentType   string   `json:"content_type"`
	Language      string   `json:"language"`
	URL           string   `json:"url"`
	Subjects      NameList `json:"subjects"`
	Topics        NameList `json:"topics"`
}

// ID returns the best identifier for the item: archive id, then ISBN,
// then OURN.
func (s *SearchItem) ID() string {
	if s.ArchiveID != "" {
		return s.ArchiveID
	}
	if s.ISBN != "" {
		return s.ISBN
	}
	return s.OURN
}

// HasISBN reports whether the item carries a usable ISBN.
func (s *SearchItem) HasISBN() bool {
	isbn := strings.TrimSpace(s.ISBN)
	switch strings.ToLower(isbn) {
	case "", "n/a", "none", "null":
		return false
	}
	return true
}

// TopicNames returns the item's declared topics, preferring topics over
// subjects the way the upstream payloads do.
func (s *SearchItem) TopicNames() []string {
	if len(s.Topics) > 0 {
		return s.Topics
	}
	return s.Subjects
}

// NameList decodes either ["Python"] or [{"name": "Python"}] shapes, both of
// which appear in upstream payloads.
type NameList []string

func (n *NameList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			if s != "" {
				out = append(out, s)
			}
			continue
		}
		var obj struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(item, &obj); err == nil && obj.Name != "" {
			out = append(out, obj.Name)
		}
	}
	*n = out
	return nil
}

// SearchPage is one normalized page of search results.
type SearchPage struct {
	Items   []SearchItem
	HasNext bool
	Total   int
}

// Person is an author or publisher entry.
type Person struct {
	Name string `json:"name"`
}

// BookMeta is the normalized metadata document for one book.
type BookMeta struct {
	Identifier  string   `json:"identifier"`
	ISBN        string   `json:"isbn"`
	Title       string   `json:"title"`
	Authors     []Person `json:"authors"`
	Publishers  []Person `json:"publishers"`
	Description string   `json:"description"`
	Subjects    NameList `json:"subjects"`
	Rights      string   `json:"rights"`
	Issued      string   `json:"issued"`
	Cover       string   `json:"cover"`
	WebURL      string   `json:"web_url"`
}

// AuthorNames joins author names with commas.
func (m *BookMeta) AuthorNames() string {
	names := make([]string, 0, len(m.Authors))
	for _, a := range m.Authors {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}
	return strings.Join(names, ", ")
}

// PublisherNames joins publisher names with commas.
func (m *BookMeta) PublisherNames() string {
	names := make([]string, 0, len(m.Publishers))
	for _, p := range m.Publishers {
		if p.Name != "" {
			names = append(names, p.Name)
		}
	}
	return strings.Join(names, ", ")
}

// normalize fills missing fields with "n/a" and defaults the ISBN to the
// book identifier.
func (m *BookMeta) normalize(id string) {
	if m.Identifier == "" {
		m.Identifier = id
	}
	if m.ISBN == "" || strings.EqualFold(m.ISBN, "n/a") {
		m.ISBN = m.Identifier
	}
	if m.Title == "" {
		m.Title = "n/a"
	}
	if m.Description == "" {
		m.Description = "n/a"
	}
	if m.Rights == "" {
		m.Rights = "n/a"
	}
	if m.Issued == "" {
		m.Issued = "n/a"
	}
}

// Stylesheet is one stylesheet reference attached to a chapter.
type Stylesheet struct {
	URL string `json:"url"`
}

// Chapter is one entry of the chapter index.
type Chapter struct {
	Title        string       `json:"title"`
	Filename     string       `json:"filename"`
	Content      string       `json:"content"`
	AssetBaseURL string       `json:"asset_base_url"`
	Images       []string     `json:"images"`
	Stylesheets  []Stylesheet `json:"stylesheets"`
	SiteStyles   []string     `json:"site_styles"`
}

// IsCover reports whether the chapter's filename or title names a cover.
func (c *Chapter) IsCover() bool {
	return strings.Contains(strings.ToLower(c.Filename), "cover") ||
		strings.Contains(strings.ToLower(c.Title), "cover")
}

// StylesheetURLs returns every stylesheet reference on the chapter,
// structured entries first, then site styles.
func (c *Chapter) StylesheetURLs() []string {
	urls := make([]string, 0, len(c.Stylesheets)+len(c.SiteStyles))
	for _, s := range c.Stylesheets {
		if s.URL != "" {
			urls = append(urls, s.URL)
		}
	}
	urls = append(urls, c.SiteStyles...)
	return urls
}

// TOCNode is one node of the table-of-contents tree.
type TOCNode struct {
	ID       string    `json:"id"`
	Label    string    `json:"label"`
	Href     string    `json:"href"`
	Fragment string    `json:"fragment"`
	Depth    int       `json:"depth"`
	Children []TOCNode `json:"children"`
}
