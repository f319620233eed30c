package domain

// RawItem carries the unprocessed field strings extracted by a source
// adapter. Prices keep their localized formatting ("1.299,50 TL"), URLs may
// be relative. Source-specific payload shapes (DOM fragments, API JSON) must
// not leak past the adapter; this is the only raw contract the pipeline sees.
type RawItem struct {
	Title         string `json:"title"`
	URL           string `json:"url"`
	ImageURL      string `json:"image_url"`
	OriginalPrice string `json:"original_price"`
	Price         string `json:"price"`
}
