// Package discovery walks the site's numbered listing pages and collects
// the set of product page URLs to crawl.
package discovery

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/bookwatch/crawler/internal/catalog"
	"github.com/bookwatch/crawler/internal/fetch"
	"github.com/bookwatch/crawler/internal/metrics"
)

// Config controls the listing walk.
type Config struct {
	// BaseURL is the site root, e.g. "https://books.toscrape.com".
	BaseURL string
	// PageDelay is the politeness gap between listing page fetches
	// (default 500ms).
	PageDelay time.Duration
}

// Discoverer collects product URLs from sequential listing pages.
type Discoverer struct {
	fetcher catalog.Fetcher
	baseURL string
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New builds a Discoverer on top of a fetcher (normally the retrying pool).
func New(fetcher catalog.Fetcher, cfg Config, logger *zap.Logger) *Discoverer {
	if cfg.PageDelay <= 0 {
		cfg.PageDelay = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{
		fetcher: fetcher,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		limiter: rate.NewLimiter(rate.Every(cfg.PageDelay), 1),
		logger:  logger,
	}
}

// Discover walks catalogue/page-N.html starting at page 1 until the site
// returns not-found or a page yields no product links. The result is
// de-duplicated. A fetch or parse failure ends the walk early; the URLs
// collected up to that point are returned alongside the error.
func (d *Discoverer) Discover(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var urls []string

	for page := 1; ; page++ {
		if err := d.limiter.Wait(ctx); err != nil {
			return urls, fmt.Errorf("discovery throttle: %w", err)
		}

		pageURL := fmt.Sprintf("%s/catalogue/page-%d.html", d.baseURL, page)
		resp, err := d.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			if fetch.IsNotFound(err) {
				d.logger.Info("listing pages exhausted",
					zap.Int("pages_walked", page-1),
					zap.Int("urls", len(urls)),
				)
				return urls, nil
			}
			d.logger.Warn("listing page fetch failed",
				zap.String("url", pageURL),
				zap.Error(err),
			)
			return urls, fmt.Errorf("fetch listing page %d: %w", page, err)
		}
		metrics.ObserveDiscoveryPage()

		links, err := itemLinks(resp.Body)
		if err != nil {
			return urls, fmt.Errorf("parse listing page %d: %w", page, err)
		}
		if len(links) == 0 {
			d.logger.Info("listing page empty, stopping",
				zap.Int("page", page),
				zap.Int("urls", len(urls)),
			)
			return urls, nil
		}

		for _, href := range links {
			abs := d.resolveItemURL(href)
			if abs == "" {
				continue
			}
			if _, ok := seen[abs]; ok {
				continue
			}
			seen[abs] = struct{}{}
			urls = append(urls, abs)
		}
	}
}

func itemLinks(body []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	var hrefs []string
	doc.Find("h3 a").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok && href != "" {
			hrefs = append(hrefs, href)
		}
	})
	return hrefs, nil
}

// resolveItemURL translates a listing href into an absolute product URL.
// Listing pages emit four shapes: absolute, root-relative, parent-relative,
// and bare paths that live under the catalogue subpath.
func (d *Discoverer) resolveItemURL(href string) string {
	switch {
	case strings.HasPrefix(href, "http://"), strings.HasPrefix(href, "https://"):
		return href
	case strings.HasPrefix(href, "/"):
		return d.baseURL + href
	case strings.HasPrefix(href, "../"):
		return d.baseURL + "/" + strings.ReplaceAll(href, "../", "")
	default:
		if !strings.HasPrefix(href, "catalogue/") {
			href = "catalogue/" + href
		}
		return d.baseURL + "/" + href
	}
}
