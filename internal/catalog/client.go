// Package catalog implements the read-only client for the remote product catalog.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/abgdnv/storefront/internal/product"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/singleflight"
)

// maxErrorBody limits how much of an error response is copied into the error message.
const maxErrorBody = 512

// ListParams selects one page of the catalog.
type ListParams struct {
	Offset int
	Limit  int
	// Title filters by title substring when not empty.
	Title string
}

// Client issues catalog requests over HTTP.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *slog.Logger
	lookups    singleflight.Group
	breaker    *gobreaker.CircuitBreaker[any]
}

// NewClient creates a catalog client for the products endpoint at baseURL.
// A zero timeout leaves requests bounded only by their context.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog base URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("catalog base URL must be http or https: %q", baseURL)
	}
	c := &Client{
		baseURL: u,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger.With("component", "catalog_client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ListProducts fetches one page of products, optionally filtered by title.
// Failures wrap ErrTransport.
func (c *Client) ListProducts(ctx context.Context, params ListParams) ([]product.Product, error) {
	v, err := c.guard(func() (any, error) {
		return c.listProducts(ctx, params)
	})
	if err != nil {
		return nil, err
	}
	return v.([]product.Product), nil
}

func (c *Client) listProducts(ctx context.Context, params ListParams) ([]product.Product, error) {
	u := *c.baseURL
	q := url.Values{}
	q.Set("offset", strconv.Itoa(params.Offset))
	q.Set("limit", strconv.Itoa(params.Limit))
	if params.Title != "" {
		q.Set("title", params.Title)
	}
	u.RawQuery = q.Encode()

	c.logger.DebugContext(ctx, "Listing products", "offset", params.Offset, "limit", params.Limit, "title", params.Title)
	resp, err := c.doRequest(ctx, u.String())
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if !successful(resp.StatusCode) {
		err := statusError(resp)
		c.logger.WarnContext(ctx, "Catalog list request failed", "status_code", resp.StatusCode, "error", err)
		return nil, err
	}

	var dtos []productResponse
	if err := json.NewDecoder(resp.Body).Decode(&dtos); err != nil {
		return nil, fmt.Errorf("%w: failed to decode product list: %w", ErrTransport, err)
	}
	products := make([]product.Product, 0, len(dtos))
	for _, dto := range dtos {
		p, err := dto.toProduct()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTransport, err)
		}
		products = append(products, p)
	}
	c.logger.DebugContext(ctx, "Listed products", "count", len(products))
	return products, nil
}

// GetProduct fetches a single product by id.
// Any non-success status yields ErrProductNotFound; transport failures wrap ErrTransport.
// Concurrent lookups of the same id share one request that outlives any single
// caller's cancellation.
func (c *Client) GetProduct(ctx context.Context, id int64) (*product.Product, error) {
	key := strconv.FormatInt(id, 10)
	lookupCtx := context.WithoutCancel(ctx)
	ch := c.lookups.DoChan(key, func() (any, error) {
		return c.guard(func() (any, error) {
			return c.getProduct(lookupCtx, id)
		})
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrTransport, ctx.Err())
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	if res.Shared {
		c.logger.DebugContext(ctx, "Shared in-flight product lookup", "ID", id)
	}
	p := *res.Val.(*product.Product)
	return &p, nil
}

func (c *Client) getProduct(ctx context.Context, id int64) (*product.Product, error) {
	u := c.baseURL.JoinPath(strconv.FormatInt(id, 10))
	resp, err := c.doRequest(ctx, u.String())
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if !successful(resp.StatusCode) {
		c.logger.WarnContext(ctx, "Product lookup returned non-success status", "ID", id, "status_code", resp.StatusCode)
		return nil, fmt.Errorf("%w: id %d (status %d)", ErrProductNotFound, id, resp.StatusCode)
	}

	var dto productResponse
	if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
		return nil, fmt.Errorf("%w: failed to decode product %d: %w", ErrTransport, id, err)
	}
	p, err := dto.toProduct()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return &p, nil
}

// doRequest performs a GET and forwards the request id, if any, to the catalog.
func (c *Client) doRequest(ctx context.Context, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %w", ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		req.Header.Set(middleware.RequestIDHeader, reqID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "Catalog request did not complete", "url", target, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return resp, nil
}

func successful(status int) bool {
	return status >= 200 && status < 300
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return fmt.Errorf("%w: catalog returned status %d: %s", ErrTransport, resp.StatusCode, string(body))
}
