package rapsodia

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/grupo-alas/catalog-sync/internal/catalog"
	"github.com/grupo-alas/catalog-sync/internal/urls"
)

var sizeSelectors = []string{
	// data-attribute-code is the most reliable marker.
	"div.swatch-attribute[data-attribute-code='talle_rap'] div.swatch-option.text",
	"div.swatch-attribute.talle_rap div.swatch-option.text",
	"div.swatch-attribute-options div.swatch-option.text[data-option-label]",
	"div.swatch-attribute-options div.swatch-option.text",
}

var gallerySelectors = []string{
	"img.fotorama__img",
	".gallery-placeholder img",
	".product-image-gallery img",
	".product-image img",
	".gallery-image img",
	"img[data-src]",
	"img[data-lazy]",
	".product-photo img",
	".product-gallery img",
	"img[src*='rapsodia']",
	"img[src*='media']",
	"img[src*='catalog']",
	".product.media img",
	".gallery-wrapper img",
}

// ExtractProductDetails parses a product page into a raw record.
// Extraction is best effort: individual missing fields never fail the
// whole record; validation happens downstream.
func (s *Site) ExtractProductDetails(pageURL string, body []byte) (*catalog.ExtractedRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	rec := &catalog.ExtractedRecord{SourceURL: pageURL}
	rec.Category, rec.Subcategory = urls.InferCategory(pageURL)

	s.extractTitle(doc, rec)
	s.extractPrices(doc, rec)
	s.extractDescription(doc, rec)
	s.extractSizes(doc, rec, pageURL)
	s.extractColors(doc, rec)
	s.extractImages(doc, rec, pageURL)

	if sku := strings.TrimSpace(doc.Find("div.product.attribute.sku div.value").First().Text()); sku != "" {
		rec.SKU = sku
	} else if sku := strings.TrimSpace(doc.Find("[itemprop='sku']").First().Text()); sku != "" {
		rec.SKU = sku
	}

	stock := doc.Find("div.stock.available").First()
	if stock.Length() > 0 && strings.Contains(stock.Text(), "En stock") {
		rec.Available = true
	}

	return rec, nil
}

// NormalizeProductData applies the site-specific cleanup pass: trimmed
// text fields and availability inferred from the size swatches when the
// stock element was absent.
func (s *Site) NormalizeProductData(rec *catalog.ExtractedRecord) {
	rec.Name = strings.TrimSpace(rec.Name)
	rec.Description = strings.TrimSpace(rec.Description)
	rec.PriceText = strings.TrimSpace(rec.PriceText)
	rec.OldPriceText = strings.TrimSpace(rec.OldPriceText)
	if !rec.Available && len(rec.AvailableSizes) > 0 {
		rec.Available = true
	}
}

func (s *Site) extractTitle(doc *goquery.Document, rec *catalog.ExtractedRecord) {
	if title := doc.Find("h1.page-title span.base").First(); title.Length() > 0 {
		rec.Name = strings.TrimSpace(title.Text())
		return
	}
	for _, selector := range []string{"h1.page-title", "h1.product-name", "h1"} {
		if title := doc.Find(selector).First(); title.Length() > 0 {
			rec.Name = strings.TrimSpace(title.Text())
			return
		}
	}
}

func (s *Site) extractPrices(doc *goquery.Document, rec *catalog.ExtractedRecord) {
	const finalPrice = "span.special-price span.price-container.price-final_price " +
		"span.price-wrapper.price-including-tax span.price"
	if price := doc.Find(finalPrice).First(); price.Length() > 0 {
		rec.PriceText = strings.TrimSpace(price.Text())
	} else {
		for _, selector := range []string{".price", ".product-price", "[data-price-type='finalPrice'] .price"} {
			if price := doc.Find(selector).First(); price.Length() > 0 {
				rec.PriceText = strings.TrimSpace(price.Text())
				break
			}
		}
	}

	const oldPrice = "span.old-price span.price-container.price-final_price " +
		"span.price-wrapper.price-including-tax span.price"
	if price := doc.Find(oldPrice).First(); price.Length() > 0 {
		rec.OldPriceText = strings.TrimSpace(price.Text())
	}
}

func (s *Site) extractDescription(doc *goquery.Document, rec *catalog.ExtractedRecord) {
	desc := doc.Find("div.product.attribute.overview div.value").First()
	if desc.Length() == 0 {
		return
	}
	desc.Find("ul.data.additional-attributes, br").Remove()
	rec.Description = strings.TrimSpace(desc.Text())
}

func (s *Site) extractSizes(doc *goquery.Document, rec *catalog.ExtractedRecord, pageURL string) {
	var swatches *goquery.Selection
	for _, selector := range sizeSelectors {
		if found := doc.Find(selector); found.Length() > 0 {
			swatches = found
			break
		}
	}
	if swatches == nil {
		// Wide fallback: any swatch whose label plausibly names a size.
		swatches = doc.Find("div.swatch-option").FilterFunction(func(_ int, sel *goquery.Selection) bool {
			return looksLikeSize(strings.TrimSpace(sel.Text()))
		})
	}

	swatches.Each(func(_ int, sel *goquery.Selection) {
		label, _ := sel.Attr("data-option-label")
		if label == "" {
			label = strings.TrimSpace(sel.Text())
		}
		if label == "" {
			label, _ = sel.Attr("aria-label")
		}
		if label == "" {
			label, _ = sel.Attr("data-option-tooltip-value")
		}
		size := cleanSizeText(label)
		if size == "" {
			return
		}
		rec.AllSizes = append(rec.AllSizes, size)
		if !swatchDisabled(sel) {
			rec.AvailableSizes = append(rec.AvailableSizes, size)
		} else {
			s.log.Debug("disabled size swatch",
				zap.String("size", size), zap.String("url", pageURL))
		}
	})
}

func (s *Site) extractColors(doc *goquery.Document, rec *catalog.ExtractedRecord) {
	doc.Find("div.custom-swatches.swatch-attribute.color div.swatch-attribute-options div.swatch-option.color").
		Each(func(_ int, sel *goquery.Selection) {
			if color, ok := sel.Attr("aria-label"); ok && color != "" {
				rec.Colors = append(rec.Colors, color)
			}
		})
}

// productJSONLD is the subset of the schema.org Product payload we read.
type productJSONLD struct {
	Image json.RawMessage `json:"image"`
}

func (s *Site) extractImages(doc *goquery.Document, rec *catalog.ExtractedRecord, pageURL string) {
	add := func(raw string) {
		full := urls.Normalize(raw, s.baseURL)
		if !validImageURL(full) {
			return
		}
		rec.ImageURLs = append(rec.ImageURLs, cleanImageURL(full))
	}

	// JSON-LD carries the canonical gallery.
	doc.Find("script[type='application/ld+json']").Each(func(_ int, sel *goquery.Selection) {
		var payload productJSONLD
		if err := json.Unmarshal([]byte(sel.Text()), &payload); err != nil {
			return
		}
		var list []string
		if err := json.Unmarshal(payload.Image, &list); err == nil {
			for _, u := range list {
				add(u)
			}
			return
		}
		var single string
		if err := json.Unmarshal(payload.Image, &single); err == nil {
			add(single)
		}
	})

	// Fotorama gallery inside the product media container.
	media := doc.Find("div.product.media").First()
	if media.Length() > 0 {
		media.Find("div.fotorama__stage__frame a[href], div.fotorama__stage__frame img").
			Each(func(_ int, sel *goquery.Selection) {
				if href, ok := sel.Attr("href"); ok {
					add(href)
				} else if src, ok := sel.Attr("src"); ok {
					add(src)
				}
			})
		media.Find("div.fotorama__nav__frame img.fotorama__img").Each(func(_ int, sel *goquery.Selection) {
			if src, ok := sel.Attr("src"); ok {
				add(src)
			}
		})
		media.Find("a.zoom-image-link").Each(func(_ int, sel *goquery.Selection) {
			if href, ok := sel.Attr("href"); ok {
				add(href)
			}
		})
	}

	// Generic gallery fallbacks until the record has a usable set.
	if len(rec.ImageURLs) < 8 {
		for _, selector := range gallerySelectors {
			doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
				src, ok := sel.Attr("src")
				if !ok {
					src, ok = sel.Attr("data-src")
				}
				if !ok {
					src, _ = sel.Attr("data-lazy")
				}
				if src != "" {
					add(src)
				}
			})
		}
	}

	// Last resort: the og:image meta tag.
	if len(rec.ImageURLs) == 0 {
		if content, ok := doc.Find("meta[property='og:image']").Attr("content"); ok {
			add(content)
		}
	}
}

// validImageURL keeps only product-gallery CDN images.
func validImageURL(u string) bool {
	return strings.HasPrefix(u, imagePrefix)
}

var cacheParams = []string{"v", "version", "cache", "t", "timestamp"}

// cleanImageURL strips cache-busting query parameters that would make
// the same image look like a new one on every run.
func cleanImageURL(u string) string {
	qIdx := strings.IndexByte(u, '?')
	if qIdx < 0 {
		return u
	}
	base, query := u[:qIdx], u[qIdx+1:]
	var kept []string
	for _, pair := range strings.Split(query, "&") {
		key := pair
		if eq := strings.IndexByte(pair, '='); eq >= 0 {
			key = pair[:eq]
		}
		cacheParam := false
		for _, p := range cacheParams {
			if key == p {
				cacheParam = true
				break
			}
		}
		if !cacheParam {
			kept = append(kept, pair)
		}
	}
	if len(kept) == 0 {
		return base
	}
	return base + "?" + strings.Join(kept, "&")
}
