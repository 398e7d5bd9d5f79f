package optimistic

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/storefront/internal/catalog/catalogtest"
	"github.com/fairyhunter13/storefront/internal/model"
)

func TestSimulatedConfirmer(t *testing.T) {
	ok := NewSimulated(time.Millisecond, 0, 1)
	assert.NoError(t, ok.Confirm(context.Background(), model.Product{ID: 1}))

	bad := NewSimulated(time.Millisecond, 1, 1)
	assert.ErrorIs(t, bad.Confirm(context.Background(), model.Product{ID: 1}), ErrConfirmRejected)

	slow := NewSimulated(time.Hour, 0, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, slow.Confirm(ctx, model.Product{ID: 1}), context.DeadlineExceeded)
}

func TestHTTPConfirmer(t *testing.T) {
	products, cats := catalogtest.Fixture()
	srv := catalogtest.NewServer(products, cats)
	defer srv.Close()

	c := NewHTTPConfirmer(srv.URL+"/", 7, srv.Client())
	require.NoError(t, c.Confirm(context.Background(), model.Product{ID: 4}))
	assert.Equal(t, []int{4}, srv.CartAdds())

	srv.FailCartAdds(true)
	assert.ErrorIs(t, c.Confirm(context.Background(), model.Product{ID: 5}), ErrConfirmRejected)
	assert.Equal(t, []int{4}, srv.CartAdds())
}
