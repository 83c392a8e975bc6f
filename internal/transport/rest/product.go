package rest

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/abgdnv/storefront/internal/catalog"
	"github.com/abgdnv/storefront/internal/platform/web"
)

// GetProduct looks a product up in the remote catalog.
// A missing product is 404; any other failure is 502.
func (a *API) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := web.ParseID(w, r, a.logger)
	if !ok {
		return
	}

	a.logger.DebugContext(r.Context(), "Received request to find product by ID", "ID", id)
	found, err := a.catalog.GetProduct(r.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			a.logger.WarnContext(r.Context(), "Product not found", "ID", id)
			web.RespondError(w, a.logger, http.StatusNotFound, fmt.Sprintf("Product with ID %d not found", id))
			return
		}
		a.logger.ErrorContext(r.Context(), "Error retrieving product", "ID", id, "error", err)
		web.RespondError(w, a.logger, http.StatusBadGateway, fmt.Sprintf("Failed to retrieve product with ID %d", id))
		return
	}
	web.RespondJSON(w, a.logger, http.StatusOK, found)
}
