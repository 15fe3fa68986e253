// Package utils holds small helpers shared by the HTTP layer.
package utils

import "strconv"

// Page bounds applied to every list endpoint.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// AtoiDefault parses s, returning def when s is empty or not an integer.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ParsePage reads page/pageSize query values and clamps them to
// [1, ∞) and [1, MaxPageSize].
func ParsePage(pageRaw, sizeRaw string) (page, pageSize int) {
	page = AtoiDefault(pageRaw, 1)
	if page < 1 {
		page = 1
	}
	pageSize = AtoiDefault(sizeRaw, DefaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

// PageMeta is the pagination block of list responses.
type PageMeta struct {
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	LastPage int   `json:"lastPage"`
}

// NewPageMeta computes the last page; an empty result has lastPage 1.
func NewPageMeta(total int64, page, pageSize int) PageMeta {
	last := 1
	if pageSize > 0 && total > 0 {
		last = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return PageMeta{Total: total, Page: page, PageSize: pageSize, LastPage: last}
}
