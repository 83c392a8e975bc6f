// Package favorites implements the favorited-products store, persisted under the user_favorites key.
package favorites

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/abgdnv/storefront/internal/kvstore"
	"github.com/abgdnv/storefront/internal/product"
)

// StorageKey is the persisted key owned by the favorites store.
const StorageKey = "user_favorites"

// Store holds favorited products keyed by id, in the order they were added.
type Store struct {
	mu        sync.RWMutex
	favorites []product.Product
	onChange  func(blob string)
	writer    *kvstore.Writer
	logger    *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithOnChange replaces the persistence hook. fn runs under the store lock.
func WithOnChange(fn func(blob string)) Option {
	return func(s *Store) {
		s.onChange = fn
	}
}

// NewStore rehydrates favorites from backend and starts persisting mutations to it.
func NewStore(ctx context.Context, backend kvstore.Store, logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		favorites: make([]product.Product, 0),
		logger:    logger.With("component", "favorites_store"),
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

// AddFavorite inserts p unless a favorite with the same id exists.
func (s *Store) AddFavorite(p product.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(p.ID) < 0 {
		s.favorites = append(s.favorites, p)
	}
	s.commit()
}

// RemoveFavorite deletes the favorite with productID, if present.
func (s *Store) RemoveFavorite(productID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(productID); i >= 0 {
		s.favorites = slices.Delete(s.favorites, i, i+1)
	}
	s.commit()
}

// ToggleFavorite removes p if it is a favorite and adds it otherwise.
// It reports whether p is a favorite afterwards.
func (s *Store) ToggleFavorite(p product.Product) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	defer s.commit()
	if i := s.indexOf(p.ID); i >= 0 {
		s.favorites = slices.Delete(s.favorites, i, i+1)
		return false
	}
	s.favorites = append(s.favorites, p)
	return true
}

// IsFavorite reports whether productID is a favorite.
func (s *Store) IsFavorite(productID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.indexOf(productID) >= 0
}

// GetFavoritesCount returns the number of favorites.
func (s *Store) GetFavoritesCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.favorites)
}

// Favorites returns a copy of the favorites in insertion order.
func (s *Store) Favorites() []product.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.favorites)
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
	return slices.IndexFunc(s.favorites, func(p product.Product) bool {
		return p.ID == productID
	})
}

func (s *Store) commit() {
	blob, err := json.Marshal(s.favorites)
	if err != nil {
		s.logger.Error("Failed to serialise favorites", "error", err)
		return
	}
	s.onChange(string(blob))
}

func (s *Store) rehydrate(ctx context.Context, backend kvstore.Store) {
	blob, err := backend.Get(ctx, StorageKey)
	if err != nil {
		if errors.Is(err, kvstore.ErrKeyNotFound) {
			s.logger.DebugContext(ctx, "No stored favorites, starting empty")
			return
		}
		s.logger.ErrorContext(ctx, "Failed to load favorites from storage", "error", err)
		return
	}

	var stored []product.Product
	if err := json.Unmarshal([]byte(blob), &stored); err != nil {
		s.logger.ErrorContext(ctx, "Failed to parse stored favorites, starting empty", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range stored {
		if s.indexOf(p.ID) < 0 {
			s.favorites = append(s.favorites, p)
		}
	}
	s.logger.DebugContext(ctx, "Favorites rehydrated", "count", len(s.favorites))
}
