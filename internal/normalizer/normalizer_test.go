package normalizer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discounthub/harvester/internal/domain"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"1.299,50 TL", 1299.50},
		{"₺75,00", 75.00},
		{"12.50", 12.50},
		{"99,90 TRY", 99.90},
		{"  149 TL ", 149},
		{"1.234.567,89", 1234567.89},
		{"0,99", 0.99},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePrice(tt.in)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 0.001)
		})
	}
}

func TestParsePriceRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "fiyat yok", "TL", "--"} {
		_, err := ParsePrice(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Sek Süt 1L", "sek-st-1l"},
		{"  Cola   2.5L  ", "cola-25l"},
		{"UPPER lower", "upper-lower"},
		{"---", ""},
		{"çikolata", "ikolata"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Slugify(tt.in), "input %q", tt.in)
	}
}

func TestSlugifyCollapsesPunctuationVariants(t *testing.T) {
	// Titles differing only in whitespace or punctuation share one identity.
	assert.Equal(t, Slugify("Sek Süt 1L"), Slugify("sek  süt, 1l"))
}

func TestResolveURL(t *testing.T) {
	base := "https://www.a101.com.tr"

	assert.Equal(t, "https://cdn.example.com/x.jpg", ResolveURL(base, "https://cdn.example.com/x.jpg"))
	assert.Equal(t, "https://www.a101.com.tr/urun/123", ResolveURL(base, "/urun/123"))
	assert.Equal(t, "", ResolveURL(base, ""))
	assert.Equal(t, "", ResolveURL(base, "   "))
}

func TestDiscountPercentage(t *testing.T) {
	assert.Equal(t, 25, DiscountPercentage(100.00, 75.00))
	assert.Equal(t, 50, DiscountPercentage(10, 5))
	assert.Equal(t, 33, DiscountPercentage(2.99, 1.99))
	assert.Equal(t, 1, DiscountPercentage(100, 99.49))
}

func TestNormalizeKeepsDiscountedItem(t *testing.T) {
	n := New("A101", "https://www.a101.com.tr")
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	p, ok := n.Normalize(domain.RawItem{
		Title:         "  Sek Süt 1L  ",
		URL:           "/urun/sek-sut-1l",
		OriginalPrice: "100,00 TL",
		Price:         "75,00 TL",
	}, now)

	require.True(t, ok)
	assert.Equal(t, "Sek Süt 1L", p.Name)
	assert.Equal(t, "https://www.a101.com.tr/urun/sek-sut-1l", p.URL)
	assert.Equal(t, "A101", p.Source)
	assert.Equal(t, domain.DefaultCategory, p.Category)
	assert.InDelta(t, 100.0, p.OriginalPrice, 0.001)
	assert.InDelta(t, 75.0, p.Price, 0.001)
	assert.Equal(t, 25, p.DiscountPercentage)
	assert.Equal(t, now, p.Timestamp)
}

func TestNormalizeDrops(t *testing.T) {
	n := New("A101", "https://www.a101.com.tr")
	now := time.Now()

	tests := []struct {
		name string
		item domain.RawItem
	}{
		{"empty title", domain.RawItem{Title: "  ", OriginalPrice: "100 TL", Price: "75 TL"}},
		{"unparsable original", domain.RawItem{Title: "X", OriginalPrice: "yok", Price: "75 TL"}},
		{"unparsable price", domain.RawItem{Title: "X", OriginalPrice: "100 TL", Price: "yok"}},
		{"zero original", domain.RawItem{Title: "X", OriginalPrice: "0,00", Price: "75 TL"}},
		{"price equals original", domain.RawItem{Title: "X", OriginalPrice: "75,00", Price: "75,00"}},
		{"price above original", domain.RawItem{Title: "X", OriginalPrice: "75,00", Price: "80,00"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := n.Normalize(tt.item, now)
			assert.False(t, ok)
		})
	}
}
