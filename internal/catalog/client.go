// Package catalog reads products and categories from the remote catalog API
// through a keyed read-through cache.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fairyhunter13/storefront/internal/model"
	"github.com/fairyhunter13/storefront/internal/obs"
)

// ErrNotFound is matched by errors for resources the catalog does not have.
var ErrNotFound = errors.New("catalog: not found")

// StatusError is a non-2xx response from the catalog API.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("catalog: %s returned %d", e.URL, e.Code)
}

// Is reports 404 responses as ErrNotFound.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.Code == http.StatusNotFound
}

// Client talks to a catalog API with the dummyjson product shape.
type Client struct {
	base string
	hc   *http.Client
}

// NewClient returns a client for baseURL. A nil hc uses a client with a 10s timeout.
func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), hc: hc}
}

// ListProducts fetches one listing window.
//
// Search and category cannot be combined by the API, so a query with both
// fetches every search match and filters and paginates locally.
func (c *Client) ListProducts(ctx context.Context, q Query) (model.ProductPage, error) {
	q = q.Normalize()
	params := url.Values{}
	params.Set("sortBy", q.SortBy)
	params.Set("order", q.Order)

	var path string
	switch {
	case q.Search != "" && q.Category != "":
		params.Set("q", q.Search)
		params.Set("limit", "0")
		var all model.ProductPage
		if err := c.getJSON(ctx, "products", "/products/search", params, &all); err != nil {
			return model.ProductPage{}, err
		}
		return filterPage(all.Products, q), nil
	case q.Search != "":
		path = "/products/search"
		params.Set("q", q.Search)
	case q.Category != "":
		path = "/products/category/" + url.PathEscape(q.Category)
	default:
		path = "/products"
	}
	params.Set("limit", strconv.Itoa(q.Limit()))
	params.Set("skip", strconv.Itoa(q.Skip()))

	var page model.ProductPage
	if err := c.getJSON(ctx, "products", path, params, &page); err != nil {
		return model.ProductPage{}, err
	}
	if page.Products == nil {
		page.Products = []model.Product{}
	}
	return page, nil
}

func filterPage(all []model.Product, q Query) model.ProductPage {
	matched := make([]model.Product, 0, len(all))
	for _, p := range all {
		if strings.EqualFold(p.Category, q.Category) {
			matched = append(matched, p)
		}
	}
	page := model.ProductPage{Total: len(matched), Skip: q.Skip(), Limit: q.Limit(), Products: []model.Product{}}
	if skip := q.Skip(); skip >= 0 && skip < len(matched) {
		end := min(skip+q.Limit(), len(matched))
		page.Products = matched[skip:end]
	}
	return page
}

// GetProduct fetches a single product. Unknown ids match ErrNotFound.
func (c *Client) GetProduct(ctx context.Context, id int) (model.Product, error) {
	var p model.Product
	if err := c.getJSON(ctx, "product", "/products/"+strconv.Itoa(id), nil, &p); err != nil {
		return model.Product{}, err
	}
	return p, nil
}

// Categories fetches the category list.
func (c *Client) Categories(ctx context.Context) ([]model.Category, error) {
	var cats []model.Category
	if err := c.getJSON(ctx, "categories", "/products/categories", nil, &cats); err != nil {
		return nil, err
	}
	return cats, nil
}

func (c *Client) getJSON(ctx context.Context, resource, path string, params url.Values, out any) error {
	u := c.base + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.hc.Do(req)
	obs.CatalogFetchSeconds.WithLabelValues(resource).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("fetch %s: %w", resource, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{Code: resp.StatusCode, URL: u}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", resource, err)
	}
	return nil
}
