// Package fetcher is the Fetcher component of spec.md §2: issues a GET for
// a URL with caller-supplied request options and yields a status code and a
// byte stream, grounded on glorpus-work-gotya/pkg/http and
// pkg/download.ManagerImpl's doRequest.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Response is what the Fetcher yields: a status code and a streaming body.
// The caller owns closing Body.
type Response struct {
	StatusCode int
	Body       io.ReadCloser
}

// Fetcher is the abstract transport the Download Engine drives.
type Fetcher interface {
	// Fetch issues a GET for requestConfig["url"], applying whatever other
	// options requestConfig carries (headers, etc). url is always present
	// and always overrides any "url" key the caller supplied (spec.md §3).
	Fetch(ctx context.Context, requestConfig map[string]any) (*Response, error)
}

// HTTPFetcher is the production Fetcher, a thin wrapper over *http.Client.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

// NewHTTPFetcher builds a Fetcher with the given per-request timeout and
// User-Agent, the way glorpus-work-gotya/pkg/download.NewManager does.
func NewHTTPFetcher(timeout time.Duration, userAgent string) *HTTPFetcher {
	if userAgent == "" {
		userAgent = "assetsync/1.0"
	}
	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, requestConfig map[string]any) (*Response, error) {
	rawURL, _ := requestConfig["url"].(string)
	if rawURL == "" {
		return nil, fmt.Errorf("fetcher: requestConfig has no url")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetcher: build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	if headers, ok := requestConfig["headers"].(map[string]string); ok {
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetcher: do request: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Body: resp.Body}, nil
}
