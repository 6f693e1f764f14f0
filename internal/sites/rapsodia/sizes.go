package rapsodia

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var sizeLetters = map[string]string{
	"XS": "XS", "S": "S", "M": "M", "L": "L",
	"XL": "XL", "XXL": "XXL", "XXXL": "XXXL",
	"P": "P", "G": "G", "GG": "GG", "XG": "XG",
}

// cleanSizeText normalizes a raw swatch label. Rapsodia labels combine a
// numeric size with a letter size ("38/XS", "40 / s"); both halves are
// trimmed and the letter half uppercased against the known ladder.
func cleanSizeText(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return ""
	}
	if parts := strings.Split(cleaned, "/"); len(parts) == 2 {
		number := strings.TrimSpace(parts[0])
		letter := normalizeSizeLetter(parts[1])
		return number + "/" + letter
	}
	if mapped, ok := sizeLetters[strings.ToUpper(cleaned)]; ok {
		return mapped
	}
	return strings.ToUpper(cleaned)
}

func normalizeSizeLetter(letter string) string {
	letter = strings.ToUpper(strings.TrimSpace(letter))
	if mapped, ok := sizeLetters[letter]; ok {
		return mapped
	}
	return letter
}

var disabledClasses = []string{"disabled", "unavailable", "out-of-stock", "no-stock"}

// swatchDisabled reports whether a size swatch is rendered unselectable:
// a disabled attribute, a disabling class, the Magento empty-option
// marker, a negative tabindex, or a washed-out opacity style.
func swatchDisabled(sel *goquery.Selection) bool {
	if _, ok := sel.Attr("disabled"); ok {
		return true
	}
	for _, cls := range disabledClasses {
		if sel.HasClass(cls) {
			return true
		}
	}
	if v, _ := sel.Attr("data-option-empty"); v == "true" {
		return true
	}
	if v, _ := sel.Attr("tabindex"); v == "-1" {
		return true
	}
	style, _ := sel.Attr("style")
	style = strings.ToLower(style)
	if strings.Contains(style, "opacity: 0.5") ||
		strings.Contains(style, "opacity:0.5") ||
		strings.Contains(style, "opacity: 0.3") {
		return true
	}
	return false
}

// looksLikeSize reports whether a bare swatch label plausibly names a
// size; used by the wide fallback scan when the themed selectors match
// nothing.
func looksLikeSize(text string) bool {
	if text == "" {
		return false
	}
	if _, ok := sizeLetters[strings.ToUpper(text)]; ok {
		return true
	}
	for _, r := range text {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}
