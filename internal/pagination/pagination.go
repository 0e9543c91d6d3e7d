package pagination

import (
	"net/http"
	"strconv"
)

const (
	DefaultPage = 1
	DefaultSize = 20
	MaxSize     = 100
)

// Params are 1-based page/size query parameters.
type Params struct {
	Page int `json:"page"`
	Size int `json:"size"`
}

// Meta describes a page of results.
type Meta struct {
	CurrentPage  int  `json:"current_page"`
	PerPage      int  `json:"per_page"`
	TotalPages   int  `json:"total_pages"`
	TotalRecords int  `json:"total_records"`
	HasNext      bool `json:"has_next"`
	HasPrevious  bool `json:"has_previous"`
}

// ParseParams reads page and size from the query string, ignoring
// malformed values.
func ParseParams(r *http.Request) Params {
	p := Params{Page: DefaultPage, Size: DefaultSize}

	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.Page = n
		}
	}
	if v := r.URL.Query().Get("size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.Size = n
		}
	}

	p.Validate()
	return p
}

// Validate clamps the params into the allowed range.
func (p *Params) Validate() {
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	if p.Size < 1 {
		p.Size = DefaultSize
	}
	if p.Size > MaxSize {
		p.Size = MaxSize
	}
}

func (p Params) Offset() int {
	return (p.Page - 1) * p.Size
}

func (p Params) Meta(totalRecords int) Meta {
	totalPages := (totalRecords + p.Size - 1) / p.Size
	if totalPages < 1 {
		totalPages = 1
	}

	return Meta{
		CurrentPage:  p.Page,
		PerPage:      p.Size,
		TotalPages:   totalPages,
		TotalRecords: totalRecords,
		HasNext:      p.Page < totalPages,
		HasPrevious:  p.Page > 1,
	}
}
