// Package feed implements the paginated product feed: a page-cursor state
// machine over the catalog that accumulates pages for one (mode, query) identity.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/abgdnv/storefront/internal/catalog"
	"github.com/abgdnv/storefront/internal/product"
)

// DefaultPageSize is used when a feed is created with a non-positive page size.
const DefaultPageSize = 10

var (
	ErrInvalidMode = errors.New("invalid feed mode")
	ErrInFlight    = errors.New("page request already in flight")
	ErrExhausted   = errors.New("feed has no next page")
	ErrNotReady    = errors.New("feed is not ready for the next page")
	ErrNotErrored  = errors.New("feed has no failed request to retry")
	ErrSuperseded  = errors.New("feed was reset while the request was in flight")
)

// Mode selects how the feed queries the catalog.
type Mode string

const (
	ModeBrowse Mode = "browse"
	ModeSearch Mode = "search"
)

// ParseMode converts s into a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeBrowse, ModeSearch:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// State is the position of a feed in its lifecycle.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateErrored State = "errored"
)

// PageFetcher reads one page of products from the catalog.
type PageFetcher interface {
	ListProducts(ctx context.Context, params catalog.ListParams) ([]product.Product, error)
}

// View is a point-in-time copy of a feed.
type View struct {
	Mode        Mode              `json:"mode"`
	Query       string            `json:"query"`
	State       State             `json:"state"`
	Items       []product.Product `json:"items"`
	Page        int               `json:"page"`
	HasNextPage bool              `json:"hasNextPage"`
	Error       string            `json:"error,omitempty"`
}

// Feed accumulates catalog pages for its current identity.
// At most one page request is in flight at a time.
type Feed struct {
	fetcher  PageFetcher
	pageSize int
	logger   *slog.Logger

	mu         sync.Mutex
	generation uint64
	mode       Mode
	query      string
	state      State
	items      []product.Product
	page       int
	hasNext    bool
	lastErr    error
	cancel     context.CancelFunc
}

// request captures everything a page fetch needs outside the lock.
type request struct {
	ctx        context.Context
	cancel     context.CancelFunc
	generation uint64
	cursor     int
	params     catalog.ListParams
}

// New creates an idle browse feed.
func New(fetcher PageFetcher, pageSize int, logger *slog.Logger) *Feed {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Feed{
		fetcher:  fetcher,
		pageSize: pageSize,
		logger:   logger.With("component", "feed"),
		mode:     ModeBrowse,
		state:    StateIdle,
		items:    make([]product.Product, 0),
	}
}

// Reset switches the feed to (mode, query), drops accumulated pages and
// loads the first page. A request still running for the previous identity
// is cancelled and its result discarded. A blank search query leaves the
// feed idle without issuing a request.
func (f *Feed) Reset(ctx context.Context, mode Mode, query string) error {
	if _, err := ParseMode(string(mode)); err != nil {
		return err
	}

	f.mu.Lock()
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	f.generation++
	f.mode = mode
	f.query = query
	f.items = make([]product.Product, 0)
	f.page = 0
	f.hasNext = false
	f.lastErr = nil

	if mode == ModeSearch && strings.TrimSpace(query) == "" {
		f.state = StateIdle
		f.mu.Unlock()
		f.logger.DebugContext(ctx, "Blank search query, feed left idle")
		return nil
	}

	req := f.begin(ctx, 1)
	f.mu.Unlock()

	return f.run(req)
}

// FetchNextPage loads the page after the last one fetched.
func (f *Feed) FetchNextPage(ctx context.Context) error {
	f.mu.Lock()
	switch f.state {
	case StateLoading:
		f.mu.Unlock()
		return ErrInFlight
	case StateIdle, StateErrored:
		f.mu.Unlock()
		return ErrNotReady
	}
	if !f.hasNext {
		f.mu.Unlock()
		return ErrExhausted
	}
	req := f.begin(ctx, f.page+1)
	f.mu.Unlock()

	return f.run(req)
}

// Retry repeats the request that moved the feed into the errored state.
func (f *Feed) Retry(ctx context.Context) error {
	f.mu.Lock()
	if f.state != StateErrored {
		f.mu.Unlock()
		return ErrNotErrored
	}
	f.lastErr = nil
	req := f.begin(ctx, f.page+1)
	f.mu.Unlock()

	return f.run(req)
}

// Snapshot returns a copy of the current feed state.
func (f *Feed) Snapshot() View {
	f.mu.Lock()
	defer f.mu.Unlock()

	v := View{
		Mode:        f.mode,
		Query:       f.query,
		State:       f.state,
		Items:       slices.Clone(f.items),
		Page:        f.page,
		HasNextPage: f.hasNext,
	}
	if f.lastErr != nil {
		v.Error = f.lastErr.Error()
	}
	return v
}

// begin moves the feed into loading for cursor. Callers hold f.mu.
func (f *Feed) begin(ctx context.Context, cursor int) request {
	reqCtx, cancel := context.WithCancel(ctx)
	f.state = StateLoading
	f.cancel = cancel

	params := catalog.ListParams{
		Offset: (cursor - 1) * f.pageSize,
		Limit:  f.pageSize,
	}
	if f.mode == ModeSearch {
		params.Title = strings.TrimSpace(f.query)
	}
	return request{
		ctx:        reqCtx,
		cancel:     cancel,
		generation: f.generation,
		cursor:     cursor,
		params:     params,
	}
}

func (f *Feed) run(req request) error {
	products, err := f.fetcher.ListProducts(req.ctx, req.params)
	req.cancel()

	f.mu.Lock()
	defer f.mu.Unlock()

	if req.generation != f.generation {
		f.logger.DebugContext(req.ctx, "Discarding page for superseded feed", "page", req.cursor)
		return ErrSuperseded
	}
	f.cancel = nil

	if err != nil {
		f.state = StateErrored
		f.lastErr = err
		f.logger.ErrorContext(req.ctx, "Failed to fetch feed page",
			"mode", f.mode, "page", req.cursor, "error", err)
		return fmt.Errorf("fetch page %d: %w", req.cursor, err)
	}

	f.items = append(f.items, products...)
	f.page = req.cursor
	f.hasNext = len(products) >= f.pageSize
	f.state = StateReady
	f.logger.DebugContext(req.ctx, "Feed page loaded",
		"mode", f.mode, "page", req.cursor, "count", len(products), "hasNextPage", f.hasNext)
	return nil
}
