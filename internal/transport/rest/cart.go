package rest

import (
	"net/http"

	"github.com/abgdnv/storefront/internal/cart"
	"github.com/abgdnv/storefront/internal/platform/web"
	"github.com/abgdnv/storefront/internal/product"
	"github.com/shopspring/decimal"
)

type cartView struct {
	Items      []cart.LineItem `json:"items"`
	Total      decimal.Decimal `json:"total"`
	ItemsCount int             `json:"itemsCount"`
}

type addItemRequest struct {
	Product  product.Product `json:"product"`
	Quantity *int            `json:"quantity" validate:"omitempty,gt=0"`
}

type updateQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

type quantityInputRequest struct {
	Text string `json:"text"`
}

func (a *API) cartView() cartView {
	return cartView{
		Items:      a.cart.Items(),
		Total:      a.cart.GetCartTotal(),
		ItemsCount: a.cart.GetCartItemsCount(),
	}
}

func (a *API) GetCart(w http.ResponseWriter, _ *http.Request) {
	web.RespondJSON(w, a.logger, http.StatusOK, a.cartView())
}

func (a *API) ClearCart(w http.ResponseWriter, r *http.Request) {
	a.cart.ClearCart()
	a.logger.DebugContext(r.Context(), "Cart cleared")
	web.RespondJSON(w, a.logger, http.StatusOK, a.cartView())
}

// AddCartItem adds quantity (default 1) of a product to the cart.
func (a *API) AddCartItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if !a.decodeValidate(w, r, &req, false) || !a.checkPrice(w, r, req.Product) {
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	a.cart.AddItem(req.Product, quantity)
	a.logger.DebugContext(r.Context(), "Item added to cart", "ID", req.Product.ID, "quantity", quantity)
	web.RespondJSON(w, a.logger, http.StatusOK, a.cartView())
}

// UpdateCartItem sets the quantity of a line item; zero or less removes it.
func (a *API) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	id, ok := web.ParseID(w, r, a.logger)
	if !ok {
		return
	}
	var req updateQuantityRequest
	if !a.decodeValidate(w, r, &req, false) {
		return
	}

	a.cart.UpdateItemQuantity(id, *req.Quantity)
	web.RespondJSON(w, a.logger, http.StatusOK, a.cartView())
}

// UpdateCartItemFromInput applies the quantity typed into a text field.
func (a *API) UpdateCartItemFromInput(w http.ResponseWriter, r *http.Request) {
	id, ok := web.ParseID(w, r, a.logger)
	if !ok {
		return
	}
	var req quantityInputRequest
	if !a.decodeValidate(w, r, &req, false) {
		return
	}

	quantity := cart.ParseQuantity(req.Text)
	a.logger.DebugContext(r.Context(), "Quantity input parsed", "ID", id, "text", req.Text, "quantity", quantity)
	a.cart.UpdateItemQuantity(id, quantity)
	web.RespondJSON(w, a.logger, http.StatusOK, a.cartView())
}

func (a *API) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	id, ok := web.ParseID(w, r, a.logger)
	if !ok {
		return
	}
	a.cart.RemoveItem(id)
	web.RespondJSON(w, a.logger, http.StatusOK, a.cartView())
}
