// Package httpprobe issues health check GETs over net/http.
package httpprobe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/melih/lighthouse-verify/internal/core/ports"
)

// Client implements ports.HTTPGetter. Redirects are not followed, so a 301
// is observed as a 301.
type Client struct {
	http *http.Client
}

var _ ports.HTTPGetter = (*Client)(nil)

// New creates a Client whose every attempt is bounded by timeout.
func New(timeout time.Duration) *Client {
	return &Client{
		http: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
			Transport: &http.Transport{
				Proxy:             nil,
				DisableKeepAlives: true,
			},
		},
	}
}

// Get returns the response status. Any transport failure, including a
// timeout, comes back as an error.
func (c *Client) Get(ctx context.Context, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "lighthouse-verify")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	return resp.StatusCode, nil
}
