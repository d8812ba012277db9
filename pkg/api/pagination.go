package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// Page is the continuation contract shared by both pagination styles.
type Page[T any] interface {
	Items() []T
	HasNext() bool
}

// CursorPage is a Cloud page; the next page is fetched from Next verbatim.
type CursorPage[T any] struct {
	Values   []T    `json:"values"`
	Page     int    `json:"page,omitempty"`
	PageLen  int    `json:"pagelen,omitempty"`
	Size     int    `json:"size,omitempty"`
	Next     string `json:"next,omitempty"`
	Previous string `json:"previous,omitempty"`
}

// Items returns the values of the page.
func (p *CursorPage[T]) Items() []T {
	return p.Values
}

// HasNext reports whether a next URL is present.
func (p *CursorPage[T]) HasNext() bool {
	return p.Next != ""
}

// NextURL returns the absolute URL of the next page.
func (p *CursorPage[T]) NextURL() (string, bool) {
	return p.Next, p.Next != ""
}

// OffsetPage is a Server page; the next page repeats the request with start
// set to NextStart and the original limit. Size is the number of values
// actually returned and may be smaller than Limit.
type OffsetPage[T any] struct {
	Values        []T  `json:"values"`
	Size          int  `json:"size"`
	Limit         int  `json:"limit"`
	IsLastPage    bool `json:"isLastPage"`
	NextPageStart *int `json:"nextPageStart,omitempty"`
	Start         int  `json:"start"`
}

// Items returns the values of the page.
func (p *OffsetPage[T]) Items() []T {
	return p.Values
}

// HasNext reports whether the server marked the page as not last.
func (p *OffsetPage[T]) HasNext() bool {
	return !p.IsLastPage
}

// NextStart returns the start of the next page. It is present exactly when
// the page is not the last one; a server that omits nextPageStart on a
// non-final page continues at Start+Size.
func (p *OffsetPage[T]) NextStart() (int, bool) {
	if p.IsLastPage {
		return 0, false
	}
	if p.NextPageStart != nil {
		return *p.NextPageStart, true
	}
	return p.Start + p.Size, true
}

// CollectCursor fetches path and follows next links until the last page or
// until max items were collected. max <= 0 means no limit.
func CollectCursor[T any](ctx context.Context, c *Client, path string, max int) ([]T, error) {
	var all []T

	page := &CursorPage[T]{}
	if err := c.Get(ctx, path, page); err != nil {
		return nil, err
	}

	for {
		all = append(all, page.Values...)
		if max > 0 && len(all) >= max {
			return all[:max], nil
		}

		next, ok := page.NextURL()
		if !ok {
			return all, nil
		}

		page = &CursorPage[T]{}
		if err := c.GetURL(ctx, next, page); err != nil {
			return nil, err
		}
	}
}

// CollectOffset fetches path with start/limit query parameters until the last
// page or until max items were collected. limit <= 0 leaves the page size to
// the server; max <= 0 means no limit.
func CollectOffset[T any](ctx context.Context, c *Client, path string, limit, max int) ([]T, error) {
	var all []T
	start := 0

	for {
		pagePath, err := withPageParams(path, start, limit)
		if err != nil {
			return nil, err
		}

		page := &OffsetPage[T]{}
		if err := c.Get(ctx, pagePath, page); err != nil {
			return nil, err
		}

		all = append(all, page.Values...)
		if max > 0 && len(all) >= max {
			return all[:max], nil
		}

		next, ok := page.NextStart()
		if !ok {
			return all, nil
		}
		if next <= start {
			return nil, fmt.Errorf("pagination did not advance past start=%d", start)
		}
		start = next
	}
}

func withPageParams(path string, start, limit int) (string, error) {
	u, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %w", path, err)
	}

	q := u.Query()
	q.Set("start", strconv.Itoa(start))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}
