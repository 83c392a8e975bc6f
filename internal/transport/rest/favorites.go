package rest

import (
	"net/http"

	"github.com/abgdnv/storefront/internal/platform/web"
	"github.com/abgdnv/storefront/internal/product"
)

type favoritesView struct {
	Items []product.Product `json:"items"`
	Count int               `json:"count"`
}

type favoriteRequest struct {
	Product product.Product `json:"product"`
}

type favoriteStatus struct {
	ID       int64 `json:"id"`
	Favorite bool  `json:"favorite"`
}

func (a *API) favoritesView() favoritesView {
	return favoritesView{
		Items: a.favorites.Favorites(),
		Count: a.favorites.GetFavoritesCount(),
	}
}

func (a *API) ListFavorites(w http.ResponseWriter, _ *http.Request) {
	web.RespondJSON(w, a.logger, http.StatusOK, a.favoritesView())
}

func (a *API) AddFavorite(w http.ResponseWriter, r *http.Request) {
	var req favoriteRequest
	if !a.decodeValidate(w, r, &req, false) || !a.checkPrice(w, r, req.Product) {
		return
	}
	a.favorites.AddFavorite(req.Product)
	web.RespondJSON(w, a.logger, http.StatusOK, a.favoritesView())
}

// ToggleFavorite flips membership and reports the new state.
func (a *API) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	var req favoriteRequest
	if !a.decodeValidate(w, r, &req, false) || !a.checkPrice(w, r, req.Product) {
		return
	}
	favorite := a.favorites.ToggleFavorite(req.Product)
	a.logger.DebugContext(r.Context(), "Favorite toggled", "ID", req.Product.ID, "favorite", favorite)
	web.RespondJSON(w, a.logger, http.StatusOK, favoriteStatus{ID: req.Product.ID, Favorite: favorite})
}

func (a *API) IsFavorite(w http.ResponseWriter, r *http.Request) {
	id, ok := web.ParseID(w, r, a.logger)
	if !ok {
		return
	}
	web.RespondJSON(w, a.logger, http.StatusOK, favoriteStatus{ID: id, Favorite: a.favorites.IsFavorite(id)})
}

func (a *API) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	id, ok := web.ParseID(w, r, a.logger)
	if !ok {
		return
	}
	a.favorites.RemoveFavorite(id)
	web.RespondJSON(w, a.logger, http.StatusOK, a.favoritesView())
}
