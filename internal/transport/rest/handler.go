// Package rest exposes the storefront stores, feeds and catalog lookups to the UI shell as a local JSON API.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/abgdnv/storefront/internal/cart"
	"github.com/abgdnv/storefront/internal/favorites"
	"github.com/abgdnv/storefront/internal/feed"
	"github.com/abgdnv/storefront/internal/platform/web"
	"github.com/abgdnv/storefront/internal/product"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// ProductLookup resolves a single catalog product.
type ProductLookup interface {
	GetProduct(ctx context.Context, id int64) (*product.Product, error)
}

// API holds the handlers of the bridge.
type API struct {
	catalog   ProductLookup
	cart      *cart.Store
	favorites *favorites.Store
	feeds     map[feed.Mode]*feed.Feed
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewAPI creates the bridge handlers. feeds must hold one feed per mode.
func NewAPI(catalog ProductLookup, cartStore *cart.Store, favoritesStore *favorites.Store, feeds map[feed.Mode]*feed.Feed, logger *slog.Logger) *API {
	return &API{
		catalog:   catalog,
		cart:      cartStore,
		favorites: favoritesStore,
		feeds:     feeds,
		validate:  validator.New(),
		logger:    logger.With("component", "api"),
	}
}

// Routes mounts every bridge endpoint on r.
func (a *API) Routes(r chi.Router) {
	r.Get("/healthz", a.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products/{id}", a.GetProduct)

		r.Route("/feeds/{mode}", func(r chi.Router) {
			r.Get("/", a.FeedSnapshot)
			r.Post("/", a.FeedReset)
			r.Post("/next", a.FeedNextPage)
			r.Post("/retry", a.FeedRetry)
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", a.GetCart)
			r.Delete("/", a.ClearCart)
			r.Post("/items", a.AddCartItem)
			r.Route("/items/{id}", func(r chi.Router) {
				r.Put("/", a.UpdateCartItem)
				r.Put("/input", a.UpdateCartItemFromInput)
				r.Delete("/", a.RemoveCartItem)
			})
		})

		r.Route("/favorites", func(r chi.Router) {
			r.Get("/", a.ListFavorites)
			r.Post("/", a.AddFavorite)
			r.Post("/toggle", a.ToggleFavorite)
			r.Get("/{id}", a.IsFavorite)
			r.Delete("/{id}", a.RemoveFavorite)
		})
	})
}

// HealthCheck is a simple health check endpoint.
func (a *API) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	web.RespondJSON(w, a.logger, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeValidate reads a JSON body into dst and validates it.
// An empty body is accepted when allowEmpty is set. On failure it writes a 400 and returns false.
func (a *API) decodeValidate(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			a.logger.WarnContext(r.Context(), "Error decoding request body", "error", err)
			web.RespondError(w, a.logger, http.StatusBadRequest, "Invalid request body")
			return false
		}
	}

	if err := a.validate.Struct(dst); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			errorResponse := make(map[string]string)
			for _, fieldErr := range validationErrors {
				errorResponse[fieldErr.Field()] = "failed on rule: " + fieldErr.Tag()
			}
			a.logger.WarnContext(r.Context(), "Validation errors occurred", "errors", errorResponse)
			web.RespondJSON(w, a.logger, http.StatusBadRequest, map[string]any{"validation_errors": errorResponse})
			return false
		}
		a.logger.ErrorContext(r.Context(), "Error validating request body", "error", err)
		web.RespondError(w, a.logger, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// checkPrice rejects negative prices, which struct tags cannot express for decimals.
func (a *API) checkPrice(w http.ResponseWriter, r *http.Request, p product.Product) bool {
	if !p.Price.IsNegative() {
		return true
	}
	errorResponse := map[string]string{"Price": "failed on rule: gte"}
	a.logger.WarnContext(r.Context(), "Validation errors occurred", "errors", errorResponse)
	web.RespondJSON(w, a.logger, http.StatusBadRequest, map[string]any{"validation_errors": errorResponse})
	return false
}
