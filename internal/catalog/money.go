package catalog

import (
	"fmt"
	"strconv"
	"strings"
)

// Money is a monetary amount in pence. Prices are parsed from page text
// once and kept integral so equality and the gross = net + tax invariant
// hold exactly.
type Money int64

// String renders the amount as a decimal string, e.g. 5177 -> "51.77".
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// ParseMoney extracts a Money value from price text such as "£51.77".
// Currency symbols and thousands separators are stripped; at most two
// fractional digits are honored.
func ParseMoney(text string) (Money, error) {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, text)
	if cleaned == "" {
		return 0, fmt.Errorf("no numeric value in %q", text)
	}

	whole, frac, _ := strings.Cut(cleaned, ".")
	if whole == "" {
		whole = "0"
	}
	pounds, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", text, err)
	}

	if len(frac) > 2 {
		frac = frac[:2]
	}
	for len(frac) < 2 {
		frac += "0"
	}
	pence, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", text, err)
	}

	return Money(pounds*100 + pence), nil
}
