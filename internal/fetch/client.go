// Package fetch retrieves catalog pages over HTTP: a colly-backed client
// for single GETs and a bounded, retrying pool layered on top of it.
package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/bookwatch/crawler/internal/catalog"
)

// ClientConfig controls collector behavior.
type ClientConfig struct {
	UserAgent string
	Timeout   time.Duration
	// Transport overrides the HTTP transport; used by tests.
	Transport http.RoundTripper
}

// Client implements catalog.Fetcher using the Colly collector.
type Client struct {
	cfg  ClientConfig
	base *colly.Collector
}

// NewClient builds a Client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	transport := cfg.Transport
	if transport == nil {
		transport = newHTTPTransport()
	}

	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	// Clones share the visited-URL store; retries must be able to hit
	// the same URL again.
	c.AllowURLRevisit = true
	c.WithTransport(transport)

	return &Client{cfg: cfg, base: c}
}

// Fetch executes a single HTTP GET. Failures are classified into the
// fetch error taxonomy; a non-2xx status surfaces as NotFoundError or
// TransientError depending on the code.
func (c *Client) Fetch(ctx context.Context, rawURL string) (catalog.FetchResponse, error) {
	start := time.Now()

	collector := c.base.Clone()
	if c.cfg.UserAgent != "" {
		collector.UserAgent = c.cfg.UserAgent
	}
	collector.SetRequestTimeout(c.cfg.Timeout)

	var (
		result    catalog.FetchResponse
		errStatus int
		fetchErr  error
	)
	collector.OnResponse(func(r *colly.Response) {
		result = catalog.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			errStatus = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return catalog.FetchResponse{}, fmt.Errorf("fetch %s canceled: %w", rawURL, ctx.Err())
	case visitErr := <-done:
		if visitErr == nil && fetchErr == nil {
			return result, nil
		}
		if fetchErr == nil {
			fetchErr = visitErr
		}
		return catalog.FetchResponse{URL: rawURL, StatusCode: errStatus},
			Classify(rawURL, errStatus, fetchErr)
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
