package catalog

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
)

// Sort fields and orders accepted by the listing.
const (
	SortTitle  = "title"
	SortPrice  = "price"
	SortRating = "rating"

	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// DefaultPageSize is the number of products per listing page.
const DefaultPageSize = 12

// MaxSkip bounds the listing offset. Pages past it are clamped so Skip never
// overflows.
const MaxSkip = math.MaxInt32

// Query selects one page of the product listing.
type Query struct {
	Search   string
	Category string
	SortBy   string
	Order    string
	Page     int
	PageSize int
}

// DefaultQuery is the unfiltered first page sorted by title ascending.
func DefaultQuery(pageSize int) Query {
	return Query{PageSize: pageSize}.Normalize()
}

// ParseQuery reads search, category, sortBy, order and page from URL values.
// Unknown sort fields, orders and bad page numbers fall back to defaults.
func ParseQuery(v url.Values, pageSize int) Query {
	page, err := strconv.Atoi(v.Get("page"))
	if err != nil {
		page = 1
	}
	return Query{
		Search:   v.Get("search"),
		Category: v.Get("category"),
		SortBy:   v.Get("sortBy"),
		Order:    v.Get("order"),
		Page:     page,
		PageSize: pageSize,
	}.Normalize()
}

// Normalize trims the search text and replaces invalid fields with defaults.
func (q Query) Normalize() Query {
	q.Search = strings.TrimSpace(q.Search)
	q.Category = strings.TrimSpace(q.Category)
	switch q.SortBy {
	case SortTitle, SortPrice, SortRating:
	default:
		q.SortBy = SortTitle
	}
	switch q.Order {
	case OrderAsc, OrderDesc:
	default:
		q.Order = OrderAsc
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}
	if maxPage := MaxSkip/q.PageSize + 1; q.Page > maxPage {
		q.Page = maxPage
	}
	return q
}

// WithFilters returns q with new filters and the page reset to 1.
func (q Query) WithFilters(search, category, sortBy, order string) Query {
	q.Search, q.Category, q.SortBy, q.Order, q.Page = search, category, sortBy, order, 1
	return q.Normalize()
}

// Skip is the number of products before the page.
func (q Query) Skip() int { return (q.Page - 1) * q.PageSize }

// Limit is the page size.
func (q Query) Limit() int { return q.PageSize }

// Encode renders the query as URL parameters, leaving out default values.
func (q Query) Encode() string {
	v := url.Values{}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Category != "" {
		v.Set("category", q.Category)
	}
	if q.SortBy != SortTitle {
		v.Set("sortBy", q.SortBy)
	}
	if q.Order != OrderAsc {
		v.Set("order", q.Order)
	}
	if q.Page > 1 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	return v.Encode()
}

// Key is the cache fingerprint of the listing window.
func (q Query) Key() string {
	return fmt.Sprintf("%ssearch=%s|category=%s|sortBy=%s|order=%s|skip=%d|limit=%d",
		ListPrefix, url.QueryEscape(q.Search), url.QueryEscape(q.Category), q.SortBy, q.Order, q.Skip(), q.Limit())
}

// TotalPages returns how many pages of pageSize hold total products.
func TotalPages(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}
