package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fairyhunter13/storefront/internal/cart"
	"github.com/fairyhunter13/storefront/internal/catalog"
	"github.com/fairyhunter13/storefront/internal/config"
	httpopenapi "github.com/fairyhunter13/storefront/internal/http/openapi"
	"github.com/fairyhunter13/storefront/internal/model"
	"github.com/fairyhunter13/storefront/internal/obs"
	"github.com/fairyhunter13/storefront/internal/optimistic"
	"github.com/fairyhunter13/storefront/internal/persist"
)

// App holds the collaborators behind the HTTP handlers.
type App struct {
	Cfg         config.Config
	Ledger      *cart.Ledger
	Catalog     *catalog.Catalog
	Coordinator *optimistic.Coordinator
	// Writer is optional; when set its counters appear in /debug/metrics.
	Writer *persist.Writer

	closing atomic.Bool
	started time.Time
}

// NewApp returns an App ready to be routed.
func NewApp(cfg config.Config, l *cart.Ledger, cat *catalog.Catalog, co *optimistic.Coordinator, w *persist.Writer) *App {
	return &App{Cfg: cfg, Ledger: l, Catalog: cat, Coordinator: co, Writer: w, started: time.Now()}
}

// StartShutdown makes cart writes answer 503. Reads keep working.
func (a *App) StartShutdown() {
	a.closing.Store(true)
}

type listResponse struct {
	model.ProductPage
	Page       int `json:"page"`
	TotalPages int `json:"totalPages"`
}

type mutationAck struct {
	Status     string             `json:"status"`
	RequestID  string             `json:"request_id"`
	MutationID string             `json:"mutation_id"`
	ProductID  int                `json:"product_id"`
	Error      string             `json:"error,omitempty"`
	Cart       model.CartSnapshot `json:"cart"`
}

type addItemRequest struct {
	ProductID int `json:"product_id"`
}

type updateItemRequest struct {
	Quantity *int `json:"quantity"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		WriteJSONError(w, http.StatusBadRequest, codeValidation, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

// decodeJSON enforces a JSON content type and rejects unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		WriteJSONError(w, http.StatusUnsupportedMediaType, codeUnsupportedMediaType, "expected application/json")
		return false
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		WriteJSONError(w, http.StatusBadRequest, codeInvalidJSON, err.Error())
		return false
	}
	return true
}

func (a *App) rejectWhileClosing(w http.ResponseWriter) bool {
	if a.closing.Load() {
		WriteJSONError(w, http.StatusServiceUnavailable, codeShuttingDown, "")
		return true
	}
	return false
}

func (a *App) listProductsHandler(w http.ResponseWriter, r *http.Request) {
	q := catalog.ParseQuery(r.URL.Query(), a.Catalog.PageSize())
	page, err := a.Catalog.Products(r.Context(), q)
	if err != nil {
		writeCatalogError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{
		ProductPage: page,
		Page:        q.Page,
		TotalPages:  catalog.TotalPages(page.Total, q.PageSize),
	})
}

func (a *App) getProductHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := a.Catalog.Product(r.Context(), id)
	if err != nil {
		writeCatalogError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *App) categoriesHandler(w http.ResponseWriter, r *http.Request) {
	cats, err := a.Catalog.Categories(r.Context())
	if err != nil {
		writeCatalogError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

func (a *App) getCartHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Ledger.Snapshot())
}

func (a *App) addCartItemHandler(w http.ResponseWriter, r *http.Request) {
	if a.rejectWhileClosing(w) {
		return
	}
	var req addItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ProductID <= 0 {
		WriteJSONError(w, http.StatusBadRequest, codeValidation, "product_id must be a positive integer")
		return
	}
	p, err := a.Catalog.FindProduct(r.Context(), req.ProductID)
	if err != nil {
		writeCatalogError(w, r, err)
		return
	}

	m := a.Coordinator.AddToCart(r.Context(), p)
	ack := mutationAck{
		Status:     "accepted",
		RequestID:  RequestIDFromContext(r.Context()),
		MutationID: m.ID.String(),
		ProductID:  p.ID,
	}
	status := http.StatusAccepted
	if r.URL.Query().Get("wait") == "true" {
		if err := m.Wait(r.Context()); err != nil {
			return
		}
		status = http.StatusOK
		ack.Status = "confirmed"
		if m.RolledBack() {
			ack.Status = "rolled_back"
			ack.Error = m.Err().Error()
		}
	}
	ack.Cart = a.Ledger.Snapshot()
	writeJSON(w, status, ack)
	obs.Logger.Info("cart_add_accepted",
		"request_id", ack.RequestID,
		"mutation_id", ack.MutationID,
		"product_id", ack.ProductID,
		"status", ack.Status,
		"total_count", ack.Cart.TotalCount,
	)
}

func (a *App) updateCartItemHandler(w http.ResponseWriter, r *http.Request) {
	if a.rejectWhileClosing(w) {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req updateItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Quantity == nil {
		WriteJSONError(w, http.StatusBadRequest, codeValidation, "quantity is required")
		return
	}
	if _, ok := a.Ledger.Quantity(id); !ok {
		WriteJSONError(w, http.StatusNotFound, codeNotInCart, "")
		return
	}
	a.Ledger.UpdateQuantity(id, *req.Quantity)
	writeJSON(w, http.StatusOK, a.Ledger.Snapshot())
}

func (a *App) removeCartItemHandler(w http.ResponseWriter, r *http.Request) {
	if a.rejectWhileClosing(w) {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	a.Ledger.RemoveFromCart(id)
	writeJSON(w, http.StatusOK, a.Ledger.Snapshot())
}

func (a *App) clearCartHandler(w http.ResponseWriter, r *http.Request) {
	if a.rejectWhileClosing(w) {
		return
	}
	a.Ledger.ClearCart()
	writeJSON(w, http.StatusOK, a.Ledger.Snapshot())
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if a.closing.Load() {
		status = "shutting_down"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (a *App) metricsHandler(w http.ResponseWriter, r *http.Request) {
	snap := a.Ledger.Snapshot()
	products, categories := a.Catalog.Stats()
	m := map[string]any{
		"cart_lines":             len(snap.Items),
		"cart_total_count":       snap.TotalCount,
		"cart_revision":          snap.Revision,
		"mutations_in_flight":    a.Coordinator.InFlight(),
		"product_cache_entries":  products,
		"category_cache_entries": categories,
		"uptime_sec":             time.Since(a.started).Seconds(),
	}
	if a.Writer != nil {
		submitted, written, failed := a.Writer.Metrics()
		m["persist_submitted"] = submitted
		m["persist_written"] = written
		m["persist_failed"] = failed
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *App) openapiHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(httpopenapi.YAML)
}

func (a *App) docsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	html := `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>Storefront API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui'
      });
    </script>
  </body>
</html>`
	_, _ = w.Write([]byte(html))
}
