package catalog

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseQueryDefaults(t *testing.T) {
	q := ParseQuery(url.Values{}, 12)
	assert.Equal(t, Query{SortBy: SortTitle, Order: OrderAsc, Page: 1, PageSize: 12}, q)
	assert.Equal(t, 0, q.Skip())
	assert.Equal(t, 12, q.Limit())
	assert.Equal(t, "", q.Encode())
}

func TestParseQueryFallbacks(t *testing.T) {
	v := url.Values{"sortBy": {"stock"}, "order": {"sideways"}, "page": {"-2"}, "search": {"  phone "}}
	q := ParseQuery(v, 0)
	assert.Equal(t, SortTitle, q.SortBy)
	assert.Equal(t, OrderAsc, q.Order)
	assert.Equal(t, 1, q.Page)
	assert.Equal(t, DefaultPageSize, q.PageSize)
	assert.Equal(t, "phone", q.Search)

	q = ParseQuery(url.Values{"page": {"abc"}}, 12)
	assert.Equal(t, 1, q.Page)

	q = ParseQuery(url.Values{"page": {"768614336404564652"}, "search": {"a"}, "category": {"beauty"}}, 12)
	assert.Equal(t, MaxSkip/12+1, q.Page)
	assert.GreaterOrEqual(t, q.Skip(), 0)
	assert.LessOrEqual(t, q.Skip(), MaxSkip)
}

func TestEncodeOmitsDefaults(t *testing.T) {
	q := ParseQuery(url.Values{"search": {"red"}, "category": {"beauty"}, "sortBy": {"price"}, "order": {"desc"}, "page": {"3"}}, 12)
	assert.Equal(t, 24, q.Skip())
	back, err := url.ParseQuery(q.Encode())
	assert.NoError(t, err)
	assert.Equal(t, q, ParseQuery(back, 12))

	q = q.WithFilters("red", "", SortTitle, OrderAsc)
	assert.Equal(t, 1, q.Page, "changing filters resets the page")
	assert.Equal(t, "search=red", q.Encode())
}

func TestKeyDistinguishesWindows(t *testing.T) {
	a := DefaultQuery(12)
	b := a
	b.Page = 2
	c := a.WithFilters("x", "", "", "")
	assert.NotEqual(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
	assert.Equal(t, a.Key(), DefaultQuery(12).Key())
	assert.Contains(t, a.Key(), ListPrefix)
}

func TestTotalPages(t *testing.T) {
	assert.Equal(t, 0, TotalPages(0, 12))
	assert.Equal(t, 1, TotalPages(12, 12))
	assert.Equal(t, 2, TotalPages(13, 12))
	assert.Equal(t, 0, TotalPages(10, 0))
}
