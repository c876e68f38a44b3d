// Package catalog defines the core domain types shared across subsystems:
// scraped records, crawl sessions, change events, and the interfaces the
// crawl and diff pipelines consume.
package catalog
