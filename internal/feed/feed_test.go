package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/abgdnv/storefront/internal/catalog"
	"github.com/abgdnv/storefront/internal/product"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher records requests and answers them with respond.
type fakeFetcher struct {
	mu      sync.Mutex
	calls   []catalog.ListParams
	respond func(ctx context.Context, params catalog.ListParams) ([]product.Product, error)
}

func (f *fakeFetcher) ListProducts(ctx context.Context, params catalog.ListParams) ([]product.Product, error) {
	f.mu.Lock()
	f.calls = append(f.calls, params)
	f.mu.Unlock()
	return f.respond(ctx, params)
}

func (f *fakeFetcher) requests() []catalog.ListParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]catalog.ListParams(nil), f.calls...)
}

// catalogOf serves a catalog of total products, ids starting at 1.
func catalogOf(total int) func(context.Context, catalog.ListParams) ([]product.Product, error) {
	return func(_ context.Context, params catalog.ListParams) ([]product.Product, error) {
		out := make([]product.Product, 0, params.Limit)
		for i := params.Offset; i < total && len(out) < params.Limit; i++ {
			out = append(out, product.Product{
				ID:     int64(i + 1),
				Title:  params.Title,
				Price:  decimal.NewFromInt(1),
				Images: []string{},
			})
		}
		return out, nil
	}
}

func newFeed(f PageFetcher) *Feed {
	return New(f, 10, slog.New(slog.DiscardHandler))
}

func TestFeed_BrowsePagination(t *testing.T) {
	// given
	fetcher := &fakeFetcher{respond: catalogOf(14)}
	feed := newFeed(fetcher)
	ctx := context.Background()

	// when
	require.NoError(t, feed.Reset(ctx, ModeBrowse, ""))
	first := feed.Snapshot()
	require.NoError(t, feed.FetchNextPage(ctx))
	second := feed.Snapshot()

	// then
	assert.Equal(t, StateReady, first.State)
	assert.Len(t, first.Items, 10)
	assert.True(t, first.HasNextPage)

	assert.Equal(t, StateReady, second.State)
	assert.Len(t, second.Items, 14)
	assert.False(t, second.HasNextPage)
	assert.Equal(t, 2, second.Page)
	for i, p := range second.Items {
		assert.Equal(t, int64(i+1), p.ID, "pages are concatenated in fetch order")
	}

	assert.ErrorIs(t, feed.FetchNextPage(ctx), ErrExhausted)
	assert.Equal(t, []catalog.ListParams{
		{Offset: 0, Limit: 10},
		{Offset: 10, Limit: 10},
	}, fetcher.requests(), "no request after a short page")
}

func TestFeed_ExactMultipleNeedsOneEmptyPage(t *testing.T) {
	fetcher := &fakeFetcher{respond: catalogOf(10)}
	feed := newFeed(fetcher)
	ctx := context.Background()

	require.NoError(t, feed.Reset(ctx, ModeBrowse, ""))
	require.True(t, feed.Snapshot().HasNextPage)
	require.NoError(t, feed.FetchNextPage(ctx))

	view := feed.Snapshot()
	assert.Len(t, view.Items, 10)
	assert.False(t, view.HasNextPage)
	assert.Len(t, fetcher.requests(), 2)
}

func TestFeed_SearchQueries(t *testing.T) {
	testCases := []struct {
		name          string
		query         string
		expectedState State
		expectedCalls []catalog.ListParams
	}{
		{
			name:          "empty query stays idle",
			query:         "",
			expectedState: StateIdle,
			expectedCalls: nil,
		},
		{
			name:          "whitespace query stays idle",
			query:         "  \t ",
			expectedState: StateIdle,
			expectedCalls: nil,
		},
		{
			name:          "query is trimmed into the title filter",
			query:         " shirt ",
			expectedState: StateReady,
			expectedCalls: []catalog.ListParams{{Offset: 0, Limit: 10, Title: "shirt"}},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fetcher := &fakeFetcher{respond: catalogOf(3)}
			feed := newFeed(fetcher)

			err := feed.Reset(context.Background(), ModeSearch, tc.query)

			require.NoError(t, err)
			view := feed.Snapshot()
			assert.Equal(t, tc.expectedState, view.State)
			assert.Equal(t, tc.query, view.Query)
			assert.Equal(t, tc.expectedCalls, fetcher.requests())
		})
	}
}

func TestFeed_BrowseIgnoresQuery(t *testing.T) {
	fetcher := &fakeFetcher{respond: catalogOf(3)}
	feed := newFeed(fetcher)

	require.NoError(t, feed.Reset(context.Background(), ModeBrowse, "ignored"))

	assert.Equal(t, []catalog.ListParams{{Offset: 0, Limit: 10}}, fetcher.requests())
}

func TestFeed_ResetClearsAccumulatedPages(t *testing.T) {
	// given
	fetcher := &fakeFetcher{respond: catalogOf(25)}
	feed := newFeed(fetcher)
	ctx := context.Background()
	require.NoError(t, feed.Reset(ctx, ModeSearch, "shoe"))
	require.NoError(t, feed.FetchNextPage(ctx))
	require.Len(t, feed.Snapshot().Items, 20)

	// when
	require.NoError(t, feed.Reset(ctx, ModeSearch, "  "))

	// then
	view := feed.Snapshot()
	assert.Equal(t, StateIdle, view.State)
	assert.Empty(t, view.Items)
	assert.Zero(t, view.Page)
	assert.False(t, view.HasNextPage)
	assert.ErrorIs(t, feed.FetchNextPage(ctx), ErrNotReady)
}

func TestFeed_ResetEmptiesItemsBeforeFirstPageArrives(t *testing.T) {
	// given
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	serve := catalogOf(5)
	fetcher := &fakeFetcher{respond: func(ctx context.Context, params catalog.ListParams) ([]product.Product, error) {
		if params.Title == "hat" {
			started <- struct{}{}
			<-release
		}
		return serve(ctx, params)
	}}
	feed := newFeed(fetcher)
	ctx := context.Background()
	require.NoError(t, feed.Reset(ctx, ModeSearch, "shoe"))
	require.Len(t, feed.Snapshot().Items, 5)

	// when
	done := make(chan error, 1)
	go func() { done <- feed.Reset(ctx, ModeSearch, "hat") }()
	<-started

	// then
	view := feed.Snapshot()
	assert.Equal(t, StateLoading, view.State)
	assert.Empty(t, view.Items)

	close(release)
	require.NoError(t, <-done)
	assert.Len(t, feed.Snapshot().Items, 5)
}

func TestFeed_SupersededRequestIsCancelledAndDiscarded(t *testing.T) {
	// given
	started := make(chan struct{}, 1)
	serve := catalogOf(10)
	fetcher := &fakeFetcher{respond: func(ctx context.Context, params catalog.ListParams) ([]product.Product, error) {
		if params.Title == "shoe" {
			started <- struct{}{}
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return serve(ctx, params)
	}}
	feed := newFeed(fetcher)
	ctx := context.Background()

	// when
	stale := make(chan error, 1)
	go func() { stale <- feed.Reset(ctx, ModeSearch, "shoe") }()
	<-started
	err := feed.Reset(ctx, ModeSearch, "hat")

	// then
	require.NoError(t, err)
	select {
	case staleErr := <-stale:
		assert.ErrorIs(t, staleErr, ErrSuperseded)
	case <-time.After(5 * time.Second):
		t.Fatal("superseded request was not cancelled")
	}
	view := feed.Snapshot()
	assert.Equal(t, StateReady, view.State)
	assert.Equal(t, "hat", view.Query)
	assert.Len(t, view.Items, 10)
	assert.Empty(t, view.Error)
}

func TestFeed_StaleResultIgnoredWithoutCancellation(t *testing.T) {
	// given
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	fetcher := &fakeFetcher{respond: func(_ context.Context, params catalog.ListParams) ([]product.Product, error) {
		if params.Title == "old" {
			started <- struct{}{}
			<-release
			return []product.Product{{ID: 999}}, nil
		}
		return []product.Product{{ID: 1}}, nil
	}}
	feed := newFeed(fetcher)
	ctx := context.Background()

	// when
	stale := make(chan error, 1)
	go func() { stale <- feed.Reset(ctx, ModeSearch, "old") }()
	<-started
	require.NoError(t, feed.Reset(ctx, ModeSearch, "new"))
	close(release)

	// then
	assert.ErrorIs(t, <-stale, ErrSuperseded)
	view := feed.Snapshot()
	require.Len(t, view.Items, 1)
	assert.Equal(t, int64(1), view.Items[0].ID)
}

func TestFeed_SingleFlight(t *testing.T) {
	// given
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	serve := catalogOf(30)
	fetcher := &fakeFetcher{respond: func(ctx context.Context, params catalog.ListParams) ([]product.Product, error) {
		if params.Offset == 10 {
			started <- struct{}{}
			<-release
		}
		return serve(ctx, params)
	}}
	feed := newFeed(fetcher)
	ctx := context.Background()
	require.NoError(t, feed.Reset(ctx, ModeBrowse, ""))

	// when
	done := make(chan error, 1)
	go func() { done <- feed.FetchNextPage(ctx) }()
	<-started

	// then
	assert.ErrorIs(t, feed.FetchNextPage(ctx), ErrInFlight)
	assert.ErrorIs(t, feed.Retry(ctx), ErrNotErrored)
	close(release)
	require.NoError(t, <-done)
	assert.Len(t, feed.Snapshot().Items, 20)
	assert.Len(t, fetcher.requests(), 2)
}

func TestFeed_ErrorAndRetry(t *testing.T) {
	// given
	failures := 1
	serve := catalogOf(14)
	fetcher := &fakeFetcher{respond: func(ctx context.Context, params catalog.ListParams) ([]product.Product, error) {
		if params.Offset == 10 && failures > 0 {
			failures--
			return nil, catalog.ErrTransport
		}
		return serve(ctx, params)
	}}
	feed := newFeed(fetcher)
	ctx := context.Background()
	require.NoError(t, feed.Reset(ctx, ModeBrowse, ""))

	// when
	err := feed.FetchNextPage(ctx)

	// then
	require.ErrorIs(t, err, catalog.ErrTransport)
	view := feed.Snapshot()
	assert.Equal(t, StateErrored, view.State)
	assert.Len(t, view.Items, 10, "failed page leaves accumulated items intact")
	assert.NotEmpty(t, view.Error)
	assert.ErrorIs(t, feed.FetchNextPage(ctx), ErrNotReady, "no implicit retry")

	// when
	require.NoError(t, feed.Retry(ctx))

	// then
	view = feed.Snapshot()
	assert.Equal(t, StateReady, view.State)
	assert.Len(t, view.Items, 14)
	assert.Empty(t, view.Error)
	assert.Equal(t, []catalog.ListParams{
		{Offset: 0, Limit: 10},
		{Offset: 10, Limit: 10},
		{Offset: 10, Limit: 10},
	}, fetcher.requests(), "retry repeats the failed page")
}

func TestFeed_FirstPageFailure(t *testing.T) {
	fetcher := &fakeFetcher{respond: func(context.Context, catalog.ListParams) ([]product.Product, error) {
		return nil, errors.New("connection refused")
	}}
	feed := newFeed(fetcher)

	err := feed.Reset(context.Background(), ModeBrowse, "")

	require.Error(t, err)
	view := feed.Snapshot()
	assert.Equal(t, StateErrored, view.State)
	assert.Empty(t, view.Items)
	assert.Contains(t, view.Error, "connection refused")
}

func TestFeed_InvalidMode(t *testing.T) {
	fetcher := &fakeFetcher{respond: catalogOf(1)}
	feed := newFeed(fetcher)

	err := feed.Reset(context.Background(), Mode("trending"), "")

	assert.ErrorIs(t, err, ErrInvalidMode)
	assert.Empty(t, fetcher.requests())
}

func TestParseMode(t *testing.T) {
	testCases := []struct {
		input    string
		expected Mode
		wantErr  bool
	}{
		{input: "browse", expected: ModeBrowse},
		{input: "search", expected: ModeSearch},
		{input: "Browse", wantErr: true},
		{input: "", wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			mode, err := ParseMode(tc.input)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidMode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, mode)
		})
	}
}
