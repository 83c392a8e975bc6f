package kvstore

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Writer persists values for a single key in the background.
//
// Schedule never blocks on storage: it replaces the pending value and wakes the
// write loop. Only the most recent pending value is written, so values that were
// superseded before the loop picked them up are never persisted. Failed writes
// are logged and dropped.
type Writer struct {
	store        Store
	key          string
	logger       *slog.Logger
	writeTimeout time.Duration

	mu      sync.Mutex
	pending *string
	dirty   bool
	flushed chan struct{}
	closed  bool

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithWriteTimeout bounds each individual write. Zero means no bound.
func WithWriteTimeout(d time.Duration) WriterOption {
	return func(w *Writer) {
		w.writeTimeout = d
	}
}

// NewWriter starts the write loop for key.
func NewWriter(store Store, key string, logger *slog.Logger, opts ...WriterOption) *Writer {
	w := &Writer{
		store:  store,
		key:    key,
		logger: logger.With("component", "kv_writer", "key", key),
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	go w.run()
	return w
}

// Schedule replaces the pending value with value and returns immediately.
func (w *Writer) Schedule(value string) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.logger.Warn("Write scheduled after close, dropping")
		return
	}
	w.pending = &value
	if !w.dirty {
		w.dirty = true
		w.flushed = make(chan struct{})
	}
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Flush waits until every value scheduled before the call has been handled.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	if !w.dirty {
		w.mu.Unlock()
		return nil
	}
	flushed := w.flushed
	w.mu.Unlock()

	select {
	case <-flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close writes the pending value, if any, and stops the write loop.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	close(w.quit)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) run() {
	defer close(w.done)
	for {
		select {
		case <-w.wake:
			w.drain()
		case <-w.quit:
			w.drain()
			return
		}
	}
}

func (w *Writer) drain() {
	for {
		w.mu.Lock()
		if w.pending == nil {
			if w.dirty {
				w.dirty = false
				close(w.flushed)
			}
			w.mu.Unlock()
			return
		}
		value := *w.pending
		w.pending = nil
		w.mu.Unlock()

		w.write(value)
	}
}

func (w *Writer) write(value string) {
	ctx := context.Background()
	if w.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.writeTimeout)
		defer cancel()
	}
	if err := w.store.Set(ctx, w.key, value); err != nil {
		w.logger.Error("Failed to persist value", "error", err)
		return
	}
	w.logger.Debug("Persisted value", "bytes", len(value))
}
