// Package httpapi exposes the storefront catalog and cart over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fairyhunter13/storefront/internal/catalog"
	"github.com/fairyhunter13/storefront/internal/obs"
)

// Error codes returned in the "error" field.
const (
	codeNotFound             = "not_found"
	codeNotInCart            = "not_in_cart"
	codeValidation           = "validation_error"
	codeInvalidJSON          = "invalid_json"
	codeUnsupportedMediaType = "unsupported_media_type"
	codeShuttingDown         = "shutting_down"
	codeCatalogTimeout       = "catalog_timeout"
	codeCatalogUnavailable   = "catalog_unavailable"
	codeInternal             = "internal_error"
)

// jsonError represents a JSON error payload.
type jsonError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// WriteJSONError writes a JSON error payload with the given status code.
func WriteJSONError(w http.ResponseWriter, status int, code, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(jsonError{Error: code, Details: details})
}

// writeCatalogError maps a catalog failure to 404, 504 or 502.
func writeCatalogError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		WriteJSONError(w, http.StatusNotFound, codeNotFound, "")
		return
	case errors.Is(err, context.DeadlineExceeded):
		WriteJSONError(w, http.StatusGatewayTimeout, codeCatalogTimeout, err.Error())
	default:
		WriteJSONError(w, http.StatusBadGateway, codeCatalogUnavailable, err.Error())
	}
	obs.Logger.Warn("catalog_request_failed",
		"path", r.URL.Path,
		"request_id", RequestIDFromContext(r.Context()),
		"error", err,
	)
}
