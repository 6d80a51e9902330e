package models

import (
	"strings"
	"time"
)

const DefaultCurrency = "USD"

// ProductRecord is the normalized result of running a site extractor over a
// product page. Nil pointers mean the field could not be extracted.
type ProductRecord struct {
	SourceURL    string   `json:"source_url"`
	Site         string   `json:"site"`
	Title        *string  `json:"title,omitempty"`
	Price        *float64 `json:"price,omitempty"`
	Currency     string   `json:"currency"`
	ImageURL     *string  `json:"image_url,omitempty"`
	Availability string   `json:"availability,omitempty"`
	Rating       *float64 `json:"rating,omitempty"`
	ReviewCount  *int     `json:"review_count,omitempty"`
}

// Empty reports whether neither a title nor a price was found.
func (r ProductRecord) Empty() bool {
	return !r.HasTitle() && r.Price == nil
}

func (r ProductRecord) HasTitle() bool {
	return r.Title != nil && strings.TrimSpace(*r.Title) != ""
}

// Valid reports whether the record can be emitted: a non-empty title and a
// positive price.
func (r ProductRecord) Valid() bool {
	return r.HasTitle() && r.Price != nil && *r.Price > 0
}

// Item converts the record into the shape consumed by the game's loader.
func (r ProductRecord) Item() Item {
	return Item{
		Link:        r.SourceURL,
		PhotoURL:    r.ImageURL,
		Title:       r.Title,
		ActualPrice: r.Price,
		Currency:    r.Currency,
	}
}

// Item is one entry of the output dataset.
type Item struct {
	Link        string   `json:"link"`
	PhotoURL    *string  `json:"photoUrl,omitempty"`
	Title       *string  `json:"title,omitempty"`
	ActualPrice *float64 `json:"actualPrice,omitempty"`
	Currency    string   `json:"-"`
}

// StoredAsset identifies an image in the object store by the hash of its bytes.
type StoredAsset struct {
	ContentHash string `json:"content_hash"`
	Extension   string `json:"extension"`
	Key         string `json:"key"`
	PublicURL   string `json:"public_url"`
	Uploaded    bool   `json:"uploaded"`
}

const (
	OriginSeed         = "seed"
	originSearchPrefix = "search:"
)

// WorkItem is a product URL waiting to be scraped.
type WorkItem struct {
	URL       string    `json:"url"`
	Origin    string    `json:"origin"`
	CreatedAt time.Time `json:"created_at"`
}

func NewWorkItem(url, origin string) WorkItem {
	return WorkItem{URL: url, Origin: origin, CreatedAt: time.Now()}
}

func SearchOrigin(term string) string {
	return originSearchPrefix + term
}

// StrPtr and FloatPtr are small helpers for building records.
func StrPtr(s string) *string { return &s }

func FloatPtr(f float64) *float64 { return &f }

func IntPtr(i int) *int { return &i }
