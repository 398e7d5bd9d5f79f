package cart

import "github.com/fairyhunter13/storefront/internal/model"

// LinePrice is the discounted unit price times the line quantity.
func LinePrice(l model.CartLine) float64 {
	return l.DiscountedPrice() * float64(l.Quantity)
}

// TotalCount sums the quantities of lines.
func TotalCount(lines []model.CartLine) int {
	n := 0
	for _, l := range lines {
		n += l.Quantity
	}
	return n
}

// TotalPrice sums LinePrice over lines. The sum is not rounded.
func TotalPrice(lines []model.CartLine) float64 {
	var total float64
	for _, l := range lines {
		total += LinePrice(l)
	}
	return total
}
