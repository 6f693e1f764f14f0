// Package fetch implements page retrieval for the pipeline using the
// Colly collector, plus the linear-backoff retry decorator the extractor
// wraps around it.
package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/grupo-alas/catalog-sync/internal/catalog"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Collector implements catalog.Fetcher with a colly collector per fetch.
type Collector struct {
	cfg       Config
	transport http.RoundTripper
	base      *colly.Collector
}

// New builds a Collector.
func New(cfg Config) *Collector {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	transport := newHTTPTransport()
	c.WithTransport(transport)

	return &Collector{cfg: cfg, transport: transport, base: c}
}

// Fetch executes a single HTTP GET. Non-2xx responses and network errors
// are returned as transient errors so the caller's retry loop picks them
// up.
func (c *Collector) Fetch(ctx context.Context, url string) (catalog.Page, error) {
	var (
		page     catalog.Page
		fetchErr error
	)
	start := time.Now()

	collector := c.base.Clone()
	if c.cfg.UserAgent != "" {
		collector.UserAgent = c.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(c.cfg.Timeout)
	collector.WithTransport(c.transport)

	collector.OnResponse(func(r *colly.Response) {
		page = catalog.Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return catalog.Page{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return catalog.Page{}, catalog.Transient("fetch", url, err)
		}
		if fetchErr != nil {
			return catalog.Page{}, catalog.Transient("fetch", url, fetchErr)
		}
		return page, nil
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
