// Package kvstore provides the durable string key-value storage used by the
// cart and favorites stores, along with an asynchronous latest-wins writer.
package kvstore

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by Get when nothing was stored under the key.
var ErrKeyNotFound = errors.New("key not found")

// Store is an interface for durable key-value operations.
// It abstracts the underlying storage, allowing for different implementations (e.g., in-memory, file, database).
type Store interface {
	// Get returns the blob stored under key.
	// Returns ErrKeyNotFound if the key has never been set.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
}
