// Package catalogtest serves an in-memory catalog API for tests.
package catalogtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/fairyhunter13/storefront/internal/model"
)

// Server is an httptest server speaking the dummyjson product API.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	products   []model.Product
	categories []model.Category
	hits       map[string]int
	gate       chan struct{}
	failCart   bool
	cartAdds   []int
}

// NewServer starts a server holding products and categories.
func NewServer(products []model.Product, categories []model.Category) *Server {
	s := &Server{
		products:   slices.Clone(products),
		categories: slices.Clone(categories),
		hits:       map[string]int{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /products", s.list)
	mux.HandleFunc("GET /products/search", s.list)
	mux.HandleFunc("GET /products/category/{slug}", s.list)
	mux.HandleFunc("GET /products/categories", s.listCategories)
	mux.HandleFunc("GET /products/{id}", s.product)
	mux.HandleFunc("POST /carts/add", s.cartAdd)
	s.Server = httptest.NewServer(mux)
	return s
}

// Hits returns how many requests reached path.
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// SetStock changes the stock the server reports for id.
func (s *Server) SetStock(id, stock int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.products {
		if s.products[i].ID == id {
			s.products[i].Stock = stock
		}
	}
}

// BlockListings holds listing responses until the returned func is called.
func (s *Server) BlockListings() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.gate = nil
			s.mu.Unlock()
			close(gate)
		})
	}
}

// FailCartAdds makes POST /carts/add answer 500.
func (s *Server) FailCartAdds(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCart = fail
}

// CartAdds returns the product ids posted to /carts/add.
func (s *Server) CartAdds() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.cartAdds)
}

func (s *Server) hit(r *http.Request) {
	s.mu.Lock()
	s.hits[r.URL.Path]++
	s.mu.Unlock()
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	s.hit(r)
	s.mu.Lock()
	gate := s.gate
	all := slices.Clone(s.products)
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	q := r.URL.Query()
	if term := strings.ToLower(q.Get("q")); term != "" {
		all = slices.DeleteFunc(all, func(p model.Product) bool {
			return !strings.Contains(strings.ToLower(p.Title), term)
		})
	}
	if slug := r.PathValue("slug"); slug != "" {
		all = slices.DeleteFunc(all, func(p model.Product) bool { return p.Category != slug })
	}
	sortProducts(all, q.Get("sortBy"), q.Get("order"))

	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil {
		limit = 30
	}
	skip, _ := strconv.Atoi(q.Get("skip"))
	total := len(all)
	window := []model.Product{}
	if skip < total {
		end := total
		if limit > 0 {
			end = min(skip+limit, total)
		}
		window = all[skip:end]
	}
	writeJSON(w, http.StatusOK, model.ProductPage{Products: window, Total: total, Skip: skip, Limit: limit})
}

func sortProducts(ps []model.Product, by, order string) {
	slices.SortStableFunc(ps, func(a, b model.Product) int {
		var c int
		switch by {
		case "price":
			c = cmpFloat(a.Price, b.Price)
		case "rating":
			c = cmpFloat(a.Rating, b.Rating)
		case "title":
			c = strings.Compare(a.Title, b.Title)
		default:
			c = a.ID - b.ID
		}
		if order == "desc" {
			return -c
		}
		return c
	})
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (s *Server) product(w http.ResponseWriter, r *http.Request) {
	s.hit(r)
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "not found"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.products {
		if p.ID == id {
			writeJSON(w, http.StatusOK, p)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "Product with id '" + strconv.Itoa(id) + "' not found"})
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	s.hit(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.categories)
}

func (s *Server) cartAdd(w http.ResponseWriter, r *http.Request) {
	s.hit(r)
	var body struct {
		UserID   int `json:"userId"`
		Products []struct {
			ID       int `json:"id"`
			Quantity int `json:"quantity"`
		} `json:"products"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCart {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "cart unavailable"})
		return
	}
	for _, p := range body.Products {
		s.cartAdds = append(s.cartAdds, p.ID)
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": 51, "userId": body.UserID, "totalProducts": len(body.Products)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Fixture returns a small product set across two categories.
func Fixture() ([]model.Product, []model.Category) {
	products := []model.Product{
		{ID: 1, Title: "Essence Mascara", Price: 9.99, DiscountPercentage: 7.17, Rating: 4.94, Stock: 5, Brand: "Essence", Category: "beauty", Thumbnail: "1.png", Images: []string{"1a.png"}},
		{ID: 2, Title: "Eyeshadow Palette", Price: 19.99, DiscountPercentage: 5.5, Rating: 3.28, Stock: 44, Brand: "Glamour", Category: "beauty", Thumbnail: "2.png"},
		{ID: 3, Title: "Powder Canister", Price: 14.99, DiscountPercentage: 18.14, Rating: 3.82, Stock: 59, Brand: "Velvet", Category: "beauty", Thumbnail: "3.png"},
		{ID: 4, Title: "Red Lipstick", Price: 12.99, DiscountPercentage: 19.03, Rating: 2.51, Stock: 68, Brand: "Chic", Category: "beauty", Thumbnail: "4.png"},
		{ID: 5, Title: "Red Nail Polish", Price: 8.99, DiscountPercentage: 2.46, Rating: 3.91, Stock: 71, Brand: "Nail", Category: "beauty", Thumbnail: "5.png"},
		{ID: 6, Title: "Calvin Klein CK One", Price: 49.99, DiscountPercentage: 0.32, Rating: 4.85, Stock: 17, Brand: "Calvin Klein", Category: "fragrances", Thumbnail: "6.png"},
		{ID: 7, Title: "Chanel Coco Noir", Price: 129.99, DiscountPercentage: 18.64, Rating: 2.76, Stock: 41, Brand: "Chanel", Category: "fragrances", Thumbnail: "7.png"},
		{ID: 8, Title: "Dior J'adore", Price: 89.99, DiscountPercentage: 17.44, Rating: 3.31, Stock: 91, Brand: "Dior", Category: "fragrances", Thumbnail: "8.png"},
		{ID: 9, Title: "Red Rose Perfume", Price: 100, DiscountPercentage: 10, Rating: 4.1, Stock: 1, Brand: "Rose", Category: "fragrances", Thumbnail: "9.png"},
	}
	categories := []model.Category{
		{Slug: "beauty", Name: "Beauty", URL: "/products/category/beauty"},
		{Slug: "fragrances", Name: "Fragrances", URL: "/products/category/fragrances"},
	}
	return products, categories
}
