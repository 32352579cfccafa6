// Package httpclient implements the default HTTPClient collaborator over
// net/http — a pooled client with per-request user-agent rotation.
//
// No third-party HTTP client library appears anywhere in the retrieval
// pack's go.mod files; stdlib net/http is what every example repo reaches
// for, so this collaborator is stdlib-only by the same convention.
package httpclient

import (
	"context"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/archivant/lexfetch/pkg/plugin"
)

// defaultUserAgents is rotated round-robin across requests so a source
// cannot fingerprint and throttle a single static client string.
var defaultUserAgents = []string{
	"lexfetch/1.0 (+https://github.com/archivant/lexfetch)",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) lexfetch/1.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 lexfetch/1.0",
}

// Client is the default HTTPClient collaborator.
type Client struct {
	http        *http.Client
	userAgents  []string
	rotateIndex atomic.Uint64
}

// Config configures a Client.
type Config struct {
	Timeout    time.Duration // per-request timeout, default 30s
	UserAgents []string      // rotation pool, default defaultUserAgents
}

// New creates a Client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	agents := cfg.UserAgents
	if len(agents) == 0 {
		agents = defaultUserAgents
	}
	return &Client{
		http:       &http.Client{Timeout: timeout},
		userAgents: agents,
	}
}

var _ plugin.HTTPClient = (*Client)(nil)

func (c *Client) nextUserAgent() string {
	i := c.rotateIndex.Add(1) - 1
	return c.userAgents[int(i%uint64(len(c.userAgents)))]
}

// Get issues an HTTP GET, classifying connection-level failures as
// *plugin.NetworkError so callers can distinguish them from HTTP status
// errors without string matching.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) (*plugin.HTTPResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &plugin.NetworkError{Op: "new_request", Err: err}
	}
	req.Header.Set("User-Agent", c.nextUserAgent())
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &plugin.NetworkError{Op: "do", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &plugin.NetworkError{Op: "read_body", Err: err}
	}

	headerMap := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headerMap[k] = resp.Header.Get(k)
	}

	return &plugin.HTTPResponse{
		Status:      resp.StatusCode,
		Headers:     headerMap,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}
