package catalog

import (
	"encoding/json"
	"fmt"

	"github.com/abgdnv/storefront/internal/product"
	"github.com/shopspring/decimal"
)

// productResponse is the catalog's wire representation of a product.
type productResponse struct {
	ID          int64       `json:"id"`
	Title       string      `json:"title"`
	Price       json.Number `json:"price"`
	Description string      `json:"description"`
	Category    struct {
		Name string `json:"name"`
	} `json:"category"`
	Images []string `json:"images"`
}

// toProduct maps the response DTO to the domain model.
func (r productResponse) toProduct() (product.Product, error) {
	price := decimal.Zero
	if r.Price != "" {
		var err error
		price, err = decimal.NewFromString(r.Price.String())
		if err != nil {
			return product.Product{}, fmt.Errorf("invalid price %q for product %d: %w", r.Price, r.ID, err)
		}
	}
	images := r.Images
	if images == nil {
		images = []string{}
	}
	return product.Product{
		ID:          r.ID,
		Title:       r.Title,
		Price:       price,
		Description: r.Description,
		Category:    product.Category{Name: r.Category.Name},
		Images:      images,
	}, nil
}
