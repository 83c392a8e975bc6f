// Package cart implements the shopping cart store: line items keyed by product id,
// derived totals, and durable persistence under the user_cart key.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/abgdnv/storefront/internal/kvstore"
	"github.com/abgdnv/storefront/internal/product"
	"github.com/shopspring/decimal"
)

// StorageKey is the persisted key owned by the cart store.
const StorageKey = "user_cart"

// LineItem is a product plus a positive quantity.
// It serialises as the product fields with an extra quantity field.
type LineItem struct {
	product.Product
	Quantity int `json:"quantity"`
}

// Subtotal returns price × quantity.
func (li LineItem) Subtotal() decimal.Decimal {
	return li.Price.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Store is the single source of truth for the cart.
// Reads always reflect every mutation made so far; persistence trails asynchronously.
type Store struct {
	mu       sync.RWMutex
	items    []LineItem
	onChange func(blob string)
	writer   *kvstore.Writer
	logger   *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithOnChange replaces the persistence hook. fn receives the serialised cart after
// every mutation, while the store lock is held, so it must not call back into the store.
func WithOnChange(fn func(blob string)) Option {
	return func(s *Store) {
		s.onChange = fn
	}
}

// NewStore rehydrates the cart from backend and starts persisting mutations to it.
// A missing or unparsable stored cart is logged and treated as empty.
func NewStore(ctx context.Context, backend kvstore.Store, logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		items:  make([]LineItem, 0),
		logger: logger.With("component", "cart_store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.onChange == nil {
		s.writer = kvstore.NewWriter(backend, StorageKey, logger)
		s.onChange = s.writer.Schedule
	}
	s.rehydrate(ctx, backend)
	return s
}

// AddItem increments the quantity of the line item for p, or inserts a new one.
// A resulting quantity of 0 or less removes the line item.
func (s *Store) AddItem(p product.Product, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(p.ID); i >= 0 {
		s.setQuantityAt(i, addQuantity(s.items[i].Quantity, quantity))
	} else if quantity > 0 {
		s.items = append(s.items, LineItem{Product: p, Quantity: quantity})
	}
	s.commit()
}

// RemoveItem deletes the line item for productID, if present.
func (s *Store) RemoveItem(productID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(productID); i >= 0 {
		s.items = slices.Delete(s.items, i, i+1)
	}
	s.commit()
}

// UpdateItemQuantity sets the quantity of the line item for productID.
// A quantity of 0 or less removes the line item; an absent id is a no-op.
func (s *Store) UpdateItemQuantity(productID int64, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(productID); i >= 0 {
		s.setQuantityAt(i, quantity)
	}
	s.commit()
}

// ClearCart empties the cart.
func (s *Store) ClearCart() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make([]LineItem, 0)
	s.commit()
}

// GetCartTotal returns the sum of price × quantity over all line items.
func (s *Store) GetCartTotal() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, item := range s.items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// GetCartItemsCount returns the sum of quantities, not the number of distinct products.
func (s *Store) GetCartItemsCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, item := range s.items {
		count = addQuantity(count, item.Quantity)
	}
	return count
}

// Items returns a copy of the line items in insertion order.
func (s *Store) Items() []LineItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.items)
}

// Flush waits for the pending persistence write, if any.
func (s *Store) Flush(ctx context.Context) error {
	if s.writer == nil {
		return nil
	}
	return s.writer.Flush(ctx)
}

// Close flushes and stops background persistence.
func (s *Store) Close(ctx context.Context) error {
	if s.writer == nil {
		return nil
	}
	return s.writer.Close(ctx)
}

func (s *Store) indexOf(productID int64) int {
	return slices.IndexFunc(s.items, func(item LineItem) bool {
		return item.ID == productID
	})
}

func (s *Store) setQuantityAt(i, quantity int) {
	if quantity <= 0 {
		s.items = slices.Delete(s.items, i, i+1)
		return
	}
	s.items[i].Quantity = quantity
}

// commit hands the serialised cart to the persistence hook. Callers hold s.mu.
func (s *Store) commit() {
	blob, err := json.Marshal(s.items)
	if err != nil {
		s.logger.Error("Failed to serialise cart", "error", err)
		return
	}
	s.onChange(string(blob))
}

func (s *Store) rehydrate(ctx context.Context, backend kvstore.Store) {
	blob, err := backend.Get(ctx, StorageKey)
	if err != nil {
		if errors.Is(err, kvstore.ErrKeyNotFound) {
			s.logger.DebugContext(ctx, "No stored cart, starting empty")
			return
		}
		s.logger.ErrorContext(ctx, "Failed to load cart from storage", "error", err)
		return
	}

	var stored []LineItem
	if err := json.Unmarshal([]byte(blob), &stored); err != nil {
		s.logger.ErrorContext(ctx, "Failed to parse stored cart, starting empty", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range stored {
		if item.Quantity <= 0 {
			continue
		}
		if i := s.indexOf(item.ID); i >= 0 {
			s.items[i].Quantity += item.Quantity
			continue
		}
		s.items = append(s.items, item)
	}
	s.logger.DebugContext(ctx, "Cart rehydrated", "line_items", len(s.items))
}
