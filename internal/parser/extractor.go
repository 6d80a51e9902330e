package parser

import (
	"html"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/maltedev/priceguess-ingest/internal/models"
)

var whitespace = regexp.MustCompile(`\s+`)

// Extractor turns a product page into a ProductRecord using one template's
// cascades. Missing fields stay nil; Extract never fails.
type Extractor struct {
	tmpl *Template
}

func NewExtractor(t *Template) *Extractor {
	return &Extractor{tmpl: t}
}

func (e *Extractor) Template() *Template {
	return e.tmpl
}

func (e *Extractor) Extract(sourceURL, body string) models.ProductRecord {
	page := NewPage(body)
	host := hostOf(sourceURL)

	record := models.ProductRecord{
		SourceURL: sourceURL,
		Site:      e.tmpl.Name,
		Currency:  models.DefaultCurrency,
	}

	if title, ok := e.tmpl.Title.Run(page, acceptText); ok {
		record.Title = &title
	}

	e.tmpl.Price.Run(page, func(raw string) (string, bool) {
		amount, currency, ok := ParsePrice(CleanText(raw), host)
		if !ok {
			return "", false
		}
		record.Price = &amount
		record.Currency = currency
		return raw, true
	})

	if img, ok := e.tmpl.Image.Run(page, acceptURL); ok {
		record.ImageURL = &img
	}

	if avail, ok := e.tmpl.Availability.Run(page, acceptText); ok {
		record.Availability = avail
	}

	e.tmpl.Rating.Run(page, func(raw string) (string, bool) {
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil || v < 0 || v > 5 {
			return "", false
		}
		record.Rating = &v
		return raw, true
	})

	e.tmpl.ReviewCount.Run(page, func(raw string) (string, bool) {
		digits := reviewDigits.FindString(raw)
		if digits == "" {
			return "", false
		}
		n, err := strconv.Atoi(strings.ReplaceAll(digits, ",", ""))
		if err != nil {
			return "", false
		}
		record.ReviewCount = &n
		return raw, true
	})

	return record
}

var reviewDigits = regexp.MustCompile(`\d+(?:,\d{3})*`)

// CleanText decodes entities, collapses whitespace and trims.
func CleanText(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(html.UnescapeString(s), " "))
}

func acceptText(raw string) (string, bool) {
	v := CleanText(raw)
	return v, v != ""
}

func acceptURL(raw string) (string, bool) {
	v := strings.TrimSpace(html.UnescapeString(raw))
	if strings.HasPrefix(v, "//") {
		v = "https:" + v
	}
	if !strings.HasPrefix(v, "http://") && !strings.HasPrefix(v, "https://") {
		return "", false
	}
	return v, true
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
