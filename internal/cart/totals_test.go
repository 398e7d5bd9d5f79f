package cart

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fairyhunter13/storefront/internal/model"
)

func TestTotalsHelpers(t *testing.T) {
	lines := []model.CartLine{
		{Product: model.Product{ID: 1, Price: 100, DiscountPercentage: 10}, Quantity: 2},
		{Product: model.Product{ID: 2, Price: 9.99, DiscountPercentage: 0}, Quantity: 3},
		{Product: model.Product{ID: 3, Price: 40, DiscountPercentage: 100}, Quantity: 1},
	}
	assert.Equal(t, 6, TotalCount(lines))
	assert.InDelta(t, 180+29.97, TotalPrice(lines), 1e-9)
	assert.InDelta(t, 0.0, LinePrice(lines[2]), 1e-12)
	assert.Zero(t, TotalCount(nil))
	assert.Zero(t, TotalPrice(nil))
}
