package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Fingerprint returns a SHA-256 hex digest over the record's business
// fields. Metadata (URL, crawl timestamp, image, snapshot URI) is excluded
// so a re-crawl of unchanged content produces the same digest.
func (r Record) Fingerprint() string {
	h := sha256.New()
	for _, part := range []string{
		r.Title,
		r.Description,
		r.Category,
		r.UPC,
		r.PriceInclTax.String(),
		r.PriceExclTax.String(),
		r.TaxAmount.String(),
		r.Availability,
		strconv.Itoa(r.AvailableCount),
		strconv.Itoa(r.ReviewCount),
		strconv.Itoa(r.Rating),
	} {
		h.Write([]byte(part))
		h.Write([]byte{'|'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
