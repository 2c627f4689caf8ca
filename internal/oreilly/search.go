package oreilly

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// FetchPage fetches one page of search results for a topic. Pages are
// one-indexed from the caller's point of view; the v2 endpoint's zero-based
// numbering is handled here.
func (c *Client) FetchPage(ctx context.Context, topic string, page, size int) (*SearchPage, error) {
	if page < 1 {
		return nil, fmt.Errorf("page %d out of range: pages are one-indexed", page)
	}

	switch c.api {
	case APIv1:
		return c.fetchPageV1(ctx, topic, page, size)
	default:
		return c.fetchPageV2(ctx, topic, page, size)
	}
}

// fetchPageV1 queries the authenticated v1 endpoint. Paging is one-indexed.
func (c *Client) fetchPageV1(ctx context.Context, topic string, page, size int) (*SearchPage, error) {
	q := url.Values{}
	q.Set("q", topic)
	q.Set("page", strconv.Itoa(page))
	q.Set("rows", strconv.Itoa(size))

	var payload struct {
		Results []SearchItem `json:"results"`
		Total   int          `json:"total"`
	}
	endpoint := "/api/v1/search?" + q.Encode()
	if err := c.session.GetJSON(ctx, endpoint, &payload); err != nil {
		return nil, mapStatus(err, fmt.Sprintf("v1 search %q page %d", topic, page))
	}

	c.logger.Debug("search page fetched",
		"api", APIv1,
		"topic", topic,
		"page", page,
		"items", len(payload.Results),
	)

	return &SearchPage{
		Items: payload.Results,
		// v1 has no next link; a full page implies more may follow.
		HasNext: len(payload.Results) >= size,
		Total:   payload.Total,
	}, nil
}

// fetchPageV2 queries the unauthenticated v2 endpoint. The wire page number
// is zero-indexed.
func (c *Client) fetchPageV2(ctx context.Context, topic string, page, size int) (*SearchPage, error) {
	q := url.Values{}
	q.Set("query", "*")
	q.Set("topics", topic)
	q.Set("limit", strconv.Itoa(size))
	q.Set("page", strconv.Itoa(page-1))

	var payload struct {
		Results []SearchItem `json:"results"`
		Total   int          `json:"total"`
		Next    *string      `json:"next"`
	}
	endpoint := "/api/v2/search/?" + q.Encode()
	if err := c.session.GetJSON(ctx, endpoint, &payload); err != nil {
		return nil, mapStatus(err, fmt.Sprintf("v2 search %q page %d", topic, page))
	}

	c.logger.Debug("search page fetched",
		"api", APIv2,
		"topic", topic,
		"page", page,
		"items", len(payload.Results),
		"total", payload.Total,
	)

	return &SearchPage{
		Items:   payload.Results,
		HasNext: payload.Next != nil,
		Total:   payload.Total,
	}, nil
}

// FetchCatalogPage fetches one page of the whole-catalog v1 wildcard search,
// used by the catalog walk. Pages are one-indexed.
func (c *Client) FetchCatalogPage(ctx context.Context, page int) (*SearchPage, error) {
	q := url.Values{}
	q.Set("q", "*")
	q.Set("page", strconv.Itoa(page))

	var payload struct {
		Results []SearchItem `json:"results"`
		Total   int          `json:"total"`
	}
	endpoint := "/api/v1/search?" + q.Encode()
	if err := c.session.GetJSON(ctx, endpoint, &payload); err != nil {
		return nil, mapStatus(err, fmt.Sprintf("catalog page %d", page))
	}

	return &SearchPage{
		Items:   payload.Results,
		HasNext: len(payload.Results) > 0,
		Total:   payload.Total,
	}, nil
}
