package plugin

import (
	"context"

	"github.com/archivant/lexfetch/internal/core"
)

// ParseResult is the outcome of a Parser's pure transformation: the parsed
// Document (if any), extra references discovered inline (e.g. PDF URLs found
// in an HTML page), and a list of structured errors. A Parser never raises —
// every failure mode is returned as data.
type ParseResult struct {
	Document  *core.Document
	ExtraRefs []core.Reference
	Errors    []error
}

// Parser is the per-source collaborator: a deterministic, side-effect-free
// transform from fetched bytes to a ParseResult.
//
// A headless-browser adapter for JS-heavy sources is conceptually a subtype
// of the HTTPClient collaborator that returns post-render HTML; Parser itself
// never changes to accommodate it.
type Parser interface {
	Plugin
	Parse(ref core.Reference, body []byte, contentType string) ParseResult
}

// HTTPClient is the fetch-side collaborator.
type HTTPClient interface {
	Get(ctx context.Context, url string, headers map[string]string) (*HTTPResponse, error)
}

// HTTPResponse is the HTTP collaborator's result shape.
type HTTPResponse struct {
	Status      int
	Headers     map[string]string
	Body        []byte
	ContentType string
}

// NetworkError wraps connection-level failures (timeout, DNS, reset) so the
// Fetch Worker can classify them as transient without string matching.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return "network: " + e.Op + ": " + e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }
