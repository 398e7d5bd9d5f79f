package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/storefront/internal/catalog/catalogtest"
)

func newTestClient(t *testing.T) (*Client, *catalogtest.Server) {
	t.Helper()
	products, cats := catalogtest.Fixture()
	srv := catalogtest.NewServer(products, cats)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, srv.Client()), srv
}

func TestClientListProducts(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	page, err := c.ListProducts(ctx, Query{PageSize: 4})
	require.NoError(t, err)
	assert.Equal(t, 9, page.Total)
	require.Len(t, page.Products, 4)
	assert.Equal(t, "Calvin Klein CK One", page.Products[0].Title, "sorted by title ascending")

	page, err = c.ListProducts(ctx, Query{Category: "fragrances", SortBy: SortPrice, Order: OrderDesc, PageSize: 12})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	assert.Equal(t, 7, page.Products[0].ID)

	page, err = c.ListProducts(ctx, Query{Search: "red", PageSize: 12, Page: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
}

func TestClientSearchWithinCategory(t *testing.T) {
	c, srv := newTestClient(t)
	page, err := c.ListProducts(context.Background(), Query{Search: "red", Category: "beauty", PageSize: 1, Page: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Products, 1)
	assert.Equal(t, "beauty", page.Products[0].Category)
	assert.Equal(t, 1, srv.Hits("/products/search"))

	page, err = c.ListProducts(context.Background(), Query{Search: "red", Category: "beauty", PageSize: 12, Page: 5})
	require.NoError(t, err)
	assert.Empty(t, page.Products)
	assert.NotNil(t, page.Products)
}

func TestClientHugePageIsEmpty(t *testing.T) {
	c, srv := newTestClient(t)
	for _, q := range []Query{
		{Search: "a", Category: "beauty", Page: 768614336404564652, PageSize: 12},
		{Page: 768614336404564652, PageSize: 12},
	} {
		page, err := c.ListProducts(context.Background(), q)
		require.NoError(t, err)
		assert.Empty(t, page.Products)
		assert.Equal(t, MaxSkip/12*12, page.Skip)
	}
	assert.Equal(t, 1, srv.Hits("/products"))

	products, _ := catalogtest.Fixture()
	page := filterPage(products, Query{Category: "beauty", Page: 768614336404564652, PageSize: 12})
	assert.Empty(t, page.Products, "an offset that overflowed is treated as past the end")
}

func TestClientGetProduct(t *testing.T) {
	c, _ := newTestClient(t)
	p, err := c.GetProduct(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, "Red Rose Perfume", p.Title)
	assert.InDelta(t, 90.0, p.DiscountedPrice(), 1e-9)

	_, err = c.GetProduct(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNotFound)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 404, se.Code)
}

func TestClientCategories(t *testing.T) {
	c, _ := newTestClient(t)
	cats, err := c.Categories(context.Background())
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "beauty", cats[0].Slug)
}

func TestClientUnreachable(t *testing.T) {
	c, srv := newTestClient(t)
	srv.Close()
	_, err := c.Categories(context.Background())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
