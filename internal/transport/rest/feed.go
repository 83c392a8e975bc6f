package rest

import (
	"errors"
	"net/http"

	"github.com/abgdnv/storefront/internal/feed"
	"github.com/abgdnv/storefront/internal/platform/web"
	"github.com/go-chi/chi/v5"
)

type resetFeedRequest struct {
	Query string `json:"query" validate:"max=200"`
}

// feedFor resolves the {mode} path parameter. On failure it writes a 400 and returns nil.
func (a *API) feedFor(w http.ResponseWriter, r *http.Request) (*feed.Feed, feed.Mode) {
	mode, err := feed.ParseMode(chi.URLParam(r, "mode"))
	if err != nil {
		web.RespondError(w, a.logger, http.StatusBadRequest, err.Error())
		return nil, ""
	}
	f, ok := a.feeds[mode]
	if !ok {
		web.RespondError(w, a.logger, http.StatusBadRequest, "feed mode is not served: "+string(mode))
		return nil, ""
	}
	return f, mode
}

func (a *API) FeedSnapshot(w http.ResponseWriter, r *http.Request) {
	f, _ := a.feedFor(w, r)
	if f == nil {
		return
	}
	web.RespondJSON(w, a.logger, http.StatusOK, f.Snapshot())
}

// FeedReset starts the feed over for the posted query.
func (a *API) FeedReset(w http.ResponseWriter, r *http.Request) {
	f, mode := a.feedFor(w, r)
	if f == nil {
		return
	}
	var req resetFeedRequest
	if !a.decodeValidate(w, r, &req, true) {
		return
	}
	a.respondFeed(w, r, f, f.Reset(r.Context(), mode, req.Query))
}

func (a *API) FeedNextPage(w http.ResponseWriter, r *http.Request) {
	f, _ := a.feedFor(w, r)
	if f == nil {
		return
	}
	a.respondFeed(w, r, f, f.FetchNextPage(r.Context()))
}

func (a *API) FeedRetry(w http.ResponseWriter, r *http.Request) {
	f, _ := a.feedFor(w, r)
	if f == nil {
		return
	}
	a.respondFeed(w, r, f, f.Retry(r.Context()))
}

// respondFeed maps the outcome of a feed operation to a status and writes the current view.
func (a *API) respondFeed(w http.ResponseWriter, r *http.Request, f *feed.Feed, err error) {
	switch {
	case err == nil,
		errors.Is(err, feed.ErrInFlight),
		errors.Is(err, feed.ErrExhausted),
		errors.Is(err, feed.ErrSuperseded):
		if err != nil {
			a.logger.DebugContext(r.Context(), "Feed request skipped", "reason", err)
		}
		web.RespondJSON(w, a.logger, http.StatusOK, f.Snapshot())
	case errors.Is(err, feed.ErrNotReady), errors.Is(err, feed.ErrNotErrored):
		web.RespondError(w, a.logger, http.StatusConflict, err.Error())
	default:
		web.RespondJSON(w, a.logger, http.StatusBadGateway, f.Snapshot())
	}
}
