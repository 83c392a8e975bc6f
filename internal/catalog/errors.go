package catalog

import "errors"

// ErrProductNotFound is returned when a single-product lookup yields no data.
var ErrProductNotFound = errors.New("product not found")

// ErrTransport is returned when a catalog request did not complete or returned a non-success status.
var ErrTransport = errors.New("catalog request failed")
