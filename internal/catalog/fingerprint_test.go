package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sampleRecord() Record {
	return Record{
		Title:          "A Light in the Attic",
		Description:    "Poems.",
		Category:       "Poetry",
		UPC:            "a897fe39b1053632",
		PriceInclTax:   5177,
		PriceExclTax:   5177,
		TaxAmount:      0,
		Availability:   "In stock (22 available)",
		AvailableCount: 22,
		ReviewCount:    0,
		Rating:         3,
		URL:            "https://books.toscrape.com/catalogue/a-light-in-the-attic_1000/index.html",
		CrawledAt:      time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestFingerprintIgnoresMetadata(t *testing.T) {
	t.Parallel()

	a := sampleRecord()
	b := sampleRecord()
	b.CrawledAt = b.CrawledAt.Add(24 * time.Hour)
	b.URL = "https://books.toscrape.com/catalogue/other/index.html"
	b.ImageURL = "https://books.toscrape.com/media/other.jpg"
	b.SnapshotURI = "file:///tmp/snap.html"

	require.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestFingerprintChangesWithBusinessFields(t *testing.T) {
	t.Parallel()

	a := sampleRecord()

	b := sampleRecord()
	b.Rating = 4
	require.NotEqual(t, a.Fingerprint(), b.Fingerprint())

	c := sampleRecord()
	c.PriceInclTax = 5178
	require.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}
