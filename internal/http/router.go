package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fairyhunter13/storefront/internal/obs"
)

// NewRouter registers HTTP routes and returns the handler with middleware.
func NewRouter(app *App) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /products", app.listProductsHandler)
	mux.HandleFunc("GET /products/{id}", app.getProductHandler)
	mux.HandleFunc("GET /categories", app.categoriesHandler)

	mux.HandleFunc("GET /cart", app.getCartHandler)
	mux.HandleFunc("POST /cart/items", app.addCartItemHandler)
	mux.HandleFunc("PATCH /cart/items/{id}", app.updateCartItemHandler)
	mux.HandleFunc("DELETE /cart/items/{id}", app.removeCartItemHandler)
	mux.HandleFunc("DELETE /cart", app.clearCartHandler)

	mux.HandleFunc("GET /healthz", app.healthHandler)
	mux.Handle("GET /metrics", promhttp.HandlerFor(obs.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /debug/metrics", app.metricsHandler)
	mux.HandleFunc("GET /openapi.yaml", app.openapiHandler)
	mux.HandleFunc("GET /docs", app.docsHandler)
	return WithRequestID(WithLogging(WithRecover(mux)))
}
