package api

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/leaseforge/lease-engine/billing"
)

// =============================================================================
// PAGE-BASED PAGINATION
// =============================================================================

const (
	defaultPerPage = 15
	maxPerPage     = 100
)

// Pagination is the page metadata returned with every list.
type Pagination struct {
	CurrentPage int  `json:"current_page"`
	PerPage     int  `json:"per_page"`
	Total       int  `json:"total"`
	TotalPages  int  `json:"total_pages"`
	HasNext     bool `json:"has_next"`
	HasPrev     bool `json:"has_prev"`
}

// ListParams are the list query parameters: page, per_page, sort, order
// and q (search).
type ListParams struct {
	Page    int
	PerPage int
	Sort    string
	Desc    bool
	Search  string
}

// Validate clamps the parameters into their valid ranges.
func (p *ListParams) Validate() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = defaultPerPage
	}
	if p.PerPage > maxPerPage {
		p.PerPage = maxPerPage
	}
}

// Offset calculates the offset for SQL queries
func (p ListParams) Offset() int {
	return (p.Page - 1) * p.PerPage
}

func (p ListParams) Query() billing.ListQuery {
	return billing.ListQuery{
		Search: p.Search,
		Sort:   p.Sort,
		Desc:   p.Desc,
		Limit:  p.PerPage,
		Offset: p.Offset(),
	}
}

// parseListParams reads list parameters from the query string. Unparseable
// numbers fall back to the defaults.
func parseListParams(r *http.Request) ListParams {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	p := ListParams{
		Page:    page,
		PerPage: perPage,
		Sort:    strings.TrimSpace(q.Get("sort")),
		Desc:    strings.EqualFold(q.Get("order"), "desc"),
		Search:  strings.TrimSpace(q.Get("q")),
	}
	p.Validate()
	return p
}

func NewPagination(page, perPage, total int) Pagination {
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{
		CurrentPage: page,
		PerPage:     perPage,
		Total:       total,
		TotalPages:  totalPages,
		HasNext:     page < totalPages,
		HasPrev:     page > 1,
	}
}

// PaginatedResult represents a paginated result with items and pagination info
type PaginatedResult[T any] struct {
	Items      []T        `json:"items"`
	Pagination Pagination `json:"pagination"`
}

func NewPaginatedResult[T any](items []T, p ListParams, total int) PaginatedResult[T] {
	if items == nil {
		items = []T{}
	}
	return PaginatedResult[T]{
		Items:      items,
		Pagination: NewPagination(p.Page, p.PerPage, total),
	}
}
