// Package normalizer converts raw adapter output into canonical Products.
// Heterogeneous markup occasionally misparses; anything that cannot be
// normalized is dropped, never escalated.
package normalizer

import (
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"discounthub/harvester/internal/domain"
)

var (
	currencyRe   = regexp.MustCompile(`[₺]|TL|TRY`)
	whitespaceRe = regexp.MustCompile(`\s+`)
	slugStripRe  = regexp.MustCompile(`[^a-z0-9-]`)
)

// ParsePrice parses a localized price string ("1.299,50 TL", "₺75,00",
// "12.50") into a decimal amount. Thousand separators are stripped and a
// decimal comma becomes a decimal point.
func ParsePrice(s string) (float64, error) {
	cleaned := currencyRe.ReplaceAllString(s, "")
	cleaned = strings.TrimSpace(cleaned)
	cleaned = whitespaceRe.ReplaceAllString(cleaned, "")

	hasComma := strings.Contains(cleaned, ",")
	hasDot := strings.Contains(cleaned, ".")
	switch {
	case hasComma && hasDot:
		// Turkish format: dots separate thousands, comma is the decimal.
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	case hasComma:
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	}

	return strconv.ParseFloat(cleaned, 64)
}

// Slugify derives the stable identity used for filenames and the seen-set:
// lowercase, whitespace collapsed to single hyphens, everything outside
// [a-z0-9-] stripped, leading/trailing hyphens trimmed. Titles differing
// only in whitespace or punctuation collapse to the same slug; that is the
// intended dedup behavior, not a defect.
func Slugify(title string) string {
	slug := strings.ToLower(strings.TrimSpace(title))
	slug = whitespaceRe.ReplaceAllString(slug, "-")
	slug = slugStripRe.ReplaceAllString(slug, "")
	return strings.Trim(slug, "-")
}

// ResolveURL makes href absolute against base. Already-absolute URLs pass
// through unchanged; anything unparsable resolves to "".
func ResolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return b.ResolveReference(ref).String()
}

// Normalizer builds canonical Products for one source.
type Normalizer struct {
	source  string
	baseURL string
}

// New returns a Normalizer bound to a source identity and its base URL.
func New(source, baseURL string) *Normalizer {
	return &Normalizer{source: source, baseURL: baseURL}
}

// Normalize turns a raw item into a Product. The second return value is
// false when the item must be dropped: empty title, unparsable prices, a
// zero original price, or a price relationship that is not a discount.
func (n *Normalizer) Normalize(raw domain.RawItem, now time.Time) (domain.Product, bool) {
	title := strings.TrimSpace(raw.Title)
	if title == "" {
		return domain.Product{}, false
	}

	original, err := ParsePrice(raw.OriginalPrice)
	if err != nil || original == 0 {
		return domain.Product{}, false
	}
	price, err := ParsePrice(raw.Price)
	if err != nil {
		return domain.Product{}, false
	}
	if price >= original {
		// Not a discount.
		return domain.Product{}, false
	}

	return domain.Product{
		Name:               title,
		URL:                ResolveURL(n.baseURL, raw.URL),
		Source:             n.source,
		Category:           domain.DefaultCategory,
		OriginalPrice:      original,
		Price:              price,
		DiscountPercentage: DiscountPercentage(original, price),
		Timestamp:          now,
	}, true
}

// DiscountPercentage computes round(100 * (original - price) / original).
func DiscountPercentage(original, price float64) int {
	return int(math.Round(100 * (original - price) / original))
}
