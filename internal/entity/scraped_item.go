package entity

import "time"

// SourceChitaiGorod is the natural-key source name of the one supported catalog.
const SourceChitaiGorod = "chitai-gorod"

// ScrapedItem mirrors the `items` PostgreSQL table. (Source, SourceID) is the
// natural key; optional attributes are pointers so that "absent" survives a
// round trip through the store.
type ScrapedItem struct {
	ID              int64     `json:"id,omitempty"`
	Source          string    `json:"source"`
	SourceID        string    `json:"source_id"`
	Title           string    `json:"title"`
	Author          *string   `json:"author,omitempty"`
	Publisher       *string   `json:"publisher,omitempty"`
	Binding         *string   `json:"binding,omitempty"`
	CurrentPrice    float64   `json:"current_price"`
	OriginalPrice   *float64  `json:"original_price,omitempty"`
	DiscountPercent *int      `json:"discount_percent,omitempty"`
	URL             string    `json:"url"`
	ImageURL        *string   `json:"image_url,omitempty"`
	Genres          []string  `json:"genres"`
	ISBN            *string   `json:"isbn,omitempty"`
	Quantity        *int      `json:"quantity,omitempty"`
	Status          *string   `json:"status,omitempty"`
	Rating          *float64  `json:"rating,omitempty"`
	Reviews         *int      `json:"reviews,omitempty"`
	FetchedAt       time.Time `json:"fetched_at"`
}

// AuthorName returns the author or an empty string.
func (i *ScrapedItem) AuthorName() string {
	if i.Author == nil {
		return ""
	}
	return *i.Author
}

// Discount returns the discount percent or zero.
func (i *ScrapedItem) Discount() int {
	if i.DiscountPercent == nil {
		return 0
	}
	return *i.DiscountPercent
}
