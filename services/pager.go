package services

import (
	"net/url"
	"strconv"
)

// Pager carries what a view needs to render page links without losing the active search.
type Pager struct {
	URL          string `json:"url"`
	PageSize     int    `json:"page_size"`
	PageNumber   int    `json:"page_number"` // one-based
	TotalRecords int64  `json:"total_records"`
	TotalPages   int    `json:"total_pages"`
	SearchMode   bool   `json:"search_mode"`
	SearchField  string `json:"search_field,omitempty"`
	SearchQuery  string `json:"search_query,omitempty"`
	PrevURL      string `json:"prev_url,omitempty"`
	NextURL      string `json:"next_url,omitempty"`
}

func newPager(base string, pageSize, pageNumber int, total int64, searchMode bool, field, query string) Pager {
	p := Pager{
		URL:          base,
		PageSize:     pageSize,
		PageNumber:   pageNumber,
		TotalRecords: total,
		SearchMode:   searchMode,
		SearchField:  field,
		SearchQuery:  query,
	}
	if pageSize > 0 {
		p.TotalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	if pageNumber > 1 {
		p.PrevURL = p.PageURL(pageNumber - 1)
	}
	if pageNumber < p.TotalPages {
		p.NextURL = p.PageURL(pageNumber + 1)
	}
	return p
}

// PageURL links to the one-based page n, keeping the search filter when in search mode.
func (p Pager) PageURL(n int) string {
	if n < 1 {
		n = 1
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(n))
	if p.SearchMode {
		q.Set("search_field", p.SearchField)
		q.Set("search_query", p.SearchQuery)
	}
	return p.URL + "?" + q.Encode()
}
