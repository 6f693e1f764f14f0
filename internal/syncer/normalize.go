package syncer

import (
	"strconv"
	"strings"
)

// NormalizePrice turns a storefront price string ("$ 240.000", "$240,000")
// into a number. Thousand separators are stripped rather than parsed, so
// "189.999" becomes 189999. Unparseable input is 0.
func NormalizePrice(text string) float64 {
	cleaned := strings.NewReplacer("$", "", ",", "", ".", "", " ", "").Replace(text)
	if cleaned == "" {
		return 0
	}
	price, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return price
}

// NormalizeSizes uppercases, trims and dedupes a size list, preserving
// first-seen order.
func NormalizeSizes(sizes []string) []string {
	if len(sizes) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(sizes))
	out := make([]string, 0, len(sizes))
	for _, size := range sizes {
		s := strings.ToUpper(strings.TrimSpace(size))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
