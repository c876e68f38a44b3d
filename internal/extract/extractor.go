// Package extract turns raw product-page HTML into catalog records.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/bookwatch/crawler/internal/catalog"
)

var availableCountRe = regexp.MustCompile(`\((\d+)\s+available\)`)

// ParseError signals the page could not be parsed at all. Individual
// missing fields never produce it; they fall back to zero values.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Extractor pulls catalog fields out of product pages. Image references
// are resolved against the configured site base URL.
type Extractor struct {
	baseURL *url.URL
	logger  *zap.Logger
}

// New builds an Extractor for a catalog site.
func New(baseURL string, logger *zap.Logger) (*Extractor, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", baseURL, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{baseURL: u, logger: logger}, nil
}

// Extract parses one product page. Each field that cannot be located
// yields its zero value; only a document-level parse failure returns an
// error and no record.
func (e *Extractor) Extract(pageURL string, body []byte) (catalog.Record, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		e.logger.Error("parse product page",
			zap.String("url", pageURL),
			zap.Error(err),
		)
		return catalog.Record{}, &ParseError{URL: pageURL, Err: err}
	}

	rec := catalog.Record{URL: pageURL}
	rec.Title = text(doc, "h1")
	rec.Description = text(doc, "#product_description + p")
	rec.UPC = text(doc, "table.table tr:nth-of-type(1) td:nth-of-type(2)")
	rec.Category = category(doc)
	rec.PriceInclTax = price(doc, "p.price_color")
	rec.PriceExclTax = price(doc, "table.table tr:nth-of-type(2) td:nth-of-type(2)")
	rec.TaxAmount = rec.PriceInclTax - rec.PriceExclTax
	rec.Availability = text(doc, "p.availability")
	rec.AvailableCount = AvailableCount(rec.Availability)
	rec.ReviewCount = reviewCount(text(doc, "table.table tr:nth-of-type(3) td:nth-of-type(2)"))
	rec.ImageURL = e.imageURL(doc)
	rec.Rating = rating(doc)

	return rec, nil
}

func text(doc *goquery.Document, selector string) string {
	return strings.TrimSpace(doc.Find(selector).First().Text())
}

func price(doc *goquery.Document, selector string) catalog.Money {
	raw := text(doc, selector)
	if raw == "" {
		return 0
	}
	m, err := catalog.ParseMoney(raw)
	if err != nil {
		return 0
	}
	return m
}

// category reads the second breadcrumb anchor; product breadcrumbs start
// with a home link. Pages without one fall back to "Unknown".
func category(doc *goquery.Document) string {
	anchors := doc.Find("ul.breadcrumb a")
	if anchors.Length() < 2 {
		return "Unknown"
	}
	return strings.TrimSpace(anchors.Eq(1).Text())
}

// AvailableCount derives a stock count from the availability text:
// an in-stock "(N available)" suffix yields N, in-stock without a count
// yields 1, anything else yields 0.
func AvailableCount(availability string) int {
	if !strings.Contains(availability, "In stock") {
		return 0
	}
	m := availableCountRe.FindStringSubmatch(availability)
	if m == nil {
		return 1
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 1
	}
	return n
}

func reviewCount(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

func (e *Extractor) imageURL(doc *goquery.Document) string {
	src, ok := doc.Find("div.item.active img").First().Attr("src")
	if !ok || src == "" {
		return ""
	}
	ref, err := url.Parse(src)
	if err != nil {
		return ""
	}
	return e.baseURL.ResolveReference(ref).String()
}

func rating(doc *goquery.Document) int {
	classes, ok := doc.Find("p.star-rating").First().Attr("class")
	if !ok {
		return 0
	}
	for _, word := range strings.Fields(classes) {
		if r := RatingFromWord(word); r != 0 {
			return r
		}
	}
	return 0
}

// RatingFromWord maps the categorical rating words to integers.
// Unrecognized input maps to 0.
func RatingFromWord(word string) int {
	switch strings.TrimSpace(word) {
	case "One":
		return 1
	case "Two":
		return 2
	case "Three":
		return 3
	case "Four":
		return 4
	case "Five":
		return 5
	default:
		return 0
	}
}
