package oreilly

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// FetchBookMeta fetches and normalizes the metadata document for a book.
// Missing fields default to "n/a"; the ISBN defaults to the identifier.
func (c *Client) FetchBookMeta(ctx context.Context, id string) (*BookMeta, error) {
	var meta BookMeta
	endpoint := fmt.Sprintf("/api/v1/book/%s/", id)
	if err := c.session.GetJSON(ctx, endpoint, &meta); err != nil {
		return nil, mapStatus(err, "book metadata "+id)
	}
	meta.normalize(id)

	c.logger.Debug("book metadata fetched", "id", id, "title", meta.Title)
	return &meta, nil
}

// FetchChapters walks the paginated chapter index and returns the full
// ordered list with cover chapters moved to the head.
func (c *Client) FetchChapters(ctx context.Context, id string) ([]Chapter, error) {
	var all []Chapter
	for page := 1; ; page++ {
		var payload struct {
			Count   int       `json:"count"`
			Results []Chapter `json:"results"`
			Next    *string   `json:"next"`
		}
		endpoint := fmt.Sprintf("/api/v1/book/%s/chapter/?page=%d", id, page)
		if err := c.session.GetJSON(ctx, endpoint, &payload); err != nil {
			return nil, mapStatus(err, fmt.Sprintf("chapter index %s page %d", id, page))
		}
		if page == 1 && len(payload.Results) == 0 {
			return nil, fmt.Errorf("%w: chapter index %s is empty", ErrNotFound, id)
		}

		all = append(all, payload.Results...)
		if payload.Next == nil {
			break
		}
	}

	// Cover chapters lead the spine regardless of index position.
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].IsCover() && !all[j].IsCover()
	})

	c.logger.Debug("chapter index fetched", "id", id, "chapters", len(all))
	return all, nil
}

// FetchTOC fetches the table-of-contents tree for a book.
func (c *Client) FetchTOC(ctx context.Context, id string) ([]TOCNode, error) {
	var nodes []TOCNode
	endpoint := fmt.Sprintf("/api/v1/book/%s/toc/", id)
	if err := c.session.GetJSON(ctx, endpoint, &nodes); err != nil {
		return nil, mapStatus(err, "toc "+id)
	}
	return nodes, nil
}

// AssetBase returns the base URL chapter-relative assets resolve against.
// Books served through the v2 content API use a fixed files endpoint instead
// of the chapter's own asset base.
func (c *Client) AssetBase(chapter *Chapter, bookID string) (base string, v2 bool) {
	if strings.Contains(chapter.Content, "v2") {
		return c.session.Resolve(fmt.Sprintf("/api/v2/epubs/urn:orm:book:%s/files", bookID)), true
	}
	return chapter.AssetBaseURL, false
}

// ResolveImageURL resolves one chapter image reference against the asset base.
func ResolveImageURL(base string, v2 bool, ref string) string {
	if v2 {
		return base + "/" + ref
	}
	return joinURL(base, ref)
}

// joinURL resolves ref against base the way browsers do, tolerating bases
// without a trailing slash.
func joinURL(base, ref string) string {
	if base == "" {
		return ref
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	if strings.HasSuffix(base, "/") {
		return base + strings.TrimPrefix(ref, "/")
	}
	return base + "/" + strings.TrimPrefix(ref, "/")
}

// ParseBookID extracts a bare book identifier from strings that may be
// API URLs like "https://.../api/v1/book/9781492056355/".
func ParseBookID(s string) string {
	s = strings.TrimSuffix(strings.TrimSpace(s), "/")
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	return s
}
