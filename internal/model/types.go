// Package model defines domain types used by the storefront.
package model

// Product is a catalog product as served by the remote catalog API.
type Product struct {
	ID                 int      `json:"id"`
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	Price              float64  `json:"price"`
	DiscountPercentage float64  `json:"discountPercentage"`
	Rating             float64  `json:"rating"`
	Stock              int      `json:"stock"`
	Brand              string   `json:"brand"`
	Category           string   `json:"category"`
	Thumbnail          string   `json:"thumbnail"`
	Images             []string `json:"images"`
}

// DiscountedPrice returns the unit price after the percentage discount.
// No rounding is applied.
func (p Product) DiscountedPrice() float64 {
	return p.Price * (1 - p.DiscountPercentage/100)
}

// CartLine is one product in the cart together with its quantity.
type CartLine struct {
	Product
	Quantity int `json:"quantity"`
}

// Category is a catalog category.
type Category struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// ProductPage is one window of a product listing.
type ProductPage struct {
	Products []Product `json:"products"`
	Total    int       `json:"total"`
	Skip     int       `json:"skip"`
	Limit    int       `json:"limit"`
}

// CartSnapshot is the persisted form of a cart.
//
// Revision increases with every mutation of the owning ledger; storage uses it
// to reject out-of-order writes.
type CartSnapshot struct {
	Items      []CartLine `json:"items"`
	TotalCount int        `json:"totalCount"`
	TotalPrice float64    `json:"totalPrice"`
	Revision   uint64     `json:"revision"`
}
