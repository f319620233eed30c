package domain

import "time"

// Product is the canonical catalog record. Every adapter's output is
// normalized into this shape before it leaves the pipeline.
type Product struct {
	Name               string    `json:"name"`
	URL                string    `json:"url"`
	Image              string    `json:"image"`
	Source             string    `json:"source"`
	Category           string    `json:"category"`
	OriginalPrice      float64   `json:"original_price"`
	Price              float64   `json:"price"`
	DiscountPercentage int       `json:"discountPercentage"`
	Timestamp          time.Time `json:"timestamp"`
}

// DefaultCategory is the coarse classification applied to every harvested
// record in the current scope.
const DefaultCategory = "Market"
