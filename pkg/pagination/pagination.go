package pagination

import (
	"fmt"
	"net/url"
	"strconv"

	apperrors "github.com/utafrali/checkout-saga/pkg/errors"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Params holds pagination parameters extracted from query strings.
type Params struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// DefaultParams returns the first page with the default page size.
func DefaultParams() Params {
	return Params{Page: 1, PerPage: DefaultPerPage}
}

// Offset is the number of rows to skip for the page.
func (p Params) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// Validate checks that p addresses a real page.
func (p Params) Validate() error {
	if p.Page < 1 {
		return apperrors.InvalidInput(fmt.Sprintf("page must be at least 1, got %d", p.Page))
	}
	if p.PerPage < 1 || p.PerPage > MaxPerPage {
		return apperrors.InvalidInput(fmt.Sprintf("per_page must be between 1 and %d, got %d", MaxPerPage, p.PerPage))
	}
	return nil
}

// FromQuery reads page and per_page from q. Missing values take defaults;
// malformed or out-of-range values are rejected.
func FromQuery(q url.Values) (Params, error) {
	p := DefaultParams()

	fields := []struct {
		name string
		dst  *int
	}{
		{"page", &p.Page},
		{"per_page", &p.PerPage},
	}
	for _, f := range fields {
		raw := q.Get(f.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return Params{}, apperrors.InvalidInput(fmt.Sprintf("%s must be an integer", f.name))
		}
		*f.dst = v
	}

	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// Result wraps one page of items.
type Result[T any] struct {
	Items      []T  `json:"items"`
	TotalCount int  `json:"total_count"`
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// NewResult creates a page result. A nil items slice is returned as empty.
func NewResult[T any](items []T, totalCount int, params Params) Result[T] {
	if items == nil {
		items = []T{}
	}

	totalPages := 0
	if params.PerPage > 0 {
		totalPages = (totalCount + params.PerPage - 1) / params.PerPage
	}

	return Result[T]{
		Items:      items,
		TotalCount: totalCount,
		Page:       params.Page,
		PerPage:    params.PerPage,
		TotalPages: totalPages,
		HasNext:    params.Page < totalPages,
		HasPrev:    params.Page > 1,
	}
}
