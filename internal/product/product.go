// Package product holds the catalog product model shared by the stores and the feed.
package product

import "github.com/shopspring/decimal"

// Product is a read-only projection of a remote catalog record.
type Product struct {
	ID          int64           `json:"id" validate:"gt=0"`
	Title       string          `json:"title"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	Category    Category        `json:"category"`
	Images      []string        `json:"images"`
}

// Category of a product. Only the name is used by the client.
type Category struct {
	Name string `json:"name"`
}
