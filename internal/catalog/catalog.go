package catalog

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/fairyhunter13/storefront/internal/model"
)

// Cache key layout. Listing entries hold model.ProductPage, product entries
// hold model.Product.
const (
	ListPrefix    = "products|"
	ProductPrefix = "product|"
	categoriesKey = "categories"
)

// ProductKey is the cache key of a single product.
func ProductKey(id int) string { return ProductPrefix + strconv.Itoa(id) }

// Options configures a Catalog.
type Options struct {
	PageSize          int
	ProductStaleTime  time.Duration
	ProductGCTime     time.Duration
	CategoryStaleTime time.Duration
	CategoryGCTime    time.Duration
	FetchTimeout      time.Duration
	Now               func() time.Time
}

// Catalog serves listings, products and categories through caches.
type Catalog struct {
	client     *Client
	pageSize   int
	products   *Cache
	categories *Cache
}

// New builds a Catalog over client.
func New(client *Client, opts Options) *Catalog {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	return &Catalog{
		client:   client,
		pageSize: opts.PageSize,
		products: NewCache("products", CacheOptions{
			StaleTime: opts.ProductStaleTime, GCTime: opts.ProductGCTime,
			FetchTimeout: opts.FetchTimeout, Now: opts.Now,
		}),
		categories: NewCache("categories", CacheOptions{
			StaleTime: opts.CategoryStaleTime, GCTime: opts.CategoryGCTime,
			FetchTimeout: opts.FetchTimeout, Now: opts.Now,
		}),
	}
}

// PageSize returns the listing page size.
func (c *Catalog) PageSize() int { return c.pageSize }

// ProductCache exposes the cache holding listing and product entries.
func (c *Catalog) ProductCache() *Cache { return c.products }

// Products returns the listing window selected by q.
func (c *Catalog) Products(ctx context.Context, q Query) (model.ProductPage, error) {
	q.PageSize = c.pageSize
	q = q.Normalize()
	v, err := c.products.Fetch(ctx, q.Key(), func(ctx context.Context) (any, error) {
		return c.client.ListProducts(ctx, q)
	})
	if err != nil {
		return model.ProductPage{}, err
	}
	page, ok := v.(model.ProductPage)
	if !ok {
		return model.ProductPage{}, fmt.Errorf("catalog: listing entry holds %T", v)
	}
	return page, nil
}

// Product returns one product.
func (c *Catalog) Product(ctx context.Context, id int) (model.Product, error) {
	v, err := c.products.Fetch(ctx, ProductKey(id), func(ctx context.Context) (any, error) {
		return c.client.GetProduct(ctx, id)
	})
	if err != nil {
		return model.Product{}, err
	}
	p, ok := v.(model.Product)
	if !ok {
		return model.Product{}, fmt.Errorf("catalog: product entry holds %T", v)
	}
	return p, nil
}

// FindProduct looks id up in the cached product entry, then in any cached
// listing, then remotely.
func (c *Catalog) FindProduct(ctx context.Context, id int) (model.Product, error) {
	if e, ok := c.products.Read(ProductKey(id)); ok && !e.Invalidated {
		if p, ok := e.Data.(model.Product); ok {
			return p, nil
		}
	}
	for _, k := range c.products.Keys(ListPrefix) {
		e, ok := c.products.Read(k)
		if !ok {
			continue
		}
		if page, ok := e.Data.(model.ProductPage); ok {
			for _, p := range page.Products {
				if p.ID == id {
					return p, nil
				}
			}
		}
	}
	return c.Product(ctx, id)
}

// Categories returns the category list.
func (c *Catalog) Categories(ctx context.Context) ([]model.Category, error) {
	v, err := c.categories.Fetch(ctx, categoriesKey, func(ctx context.Context) (any, error) {
		return c.client.Categories(ctx)
	})
	if err != nil {
		return nil, err
	}
	cats, ok := v.([]model.Category)
	if !ok {
		return nil, fmt.Errorf("catalog: categories entry holds %T", v)
	}
	return cats, nil
}

// Stats returns the number of cached product and category entries.
func (c *Catalog) Stats() (products, categories int) {
	return c.products.Len(), c.categories.Len()
}

// Run sweeps both caches every interval until ctx is done.
func (c *Catalog) Run(ctx context.Context, interval time.Duration) {
	go c.categories.Run(ctx, interval)
	c.products.Run(ctx, interval)
}
