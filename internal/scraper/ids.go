package scraper

import (
	"fmt"
	"sync"

	"github.com/maltedev/priceguess-ingest/internal/parser"
)

var (
	defaultRegistry     *parser.Registry
	defaultRegistryOnce sync.Once
)

func templates() *parser.Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = parser.MustLoadRegistry()
	})
	return defaultRegistry
}

func extractID(site, url string) (string, error) {
	tmpl, ok := templates().Get(site)
	if !ok {
		return "", fmt.Errorf("unknown site %q", site)
	}
	id, ok := tmpl.ExtractID(url)
	if !ok {
		return "", fmt.Errorf("%w: no %s product id in %s", ErrInvalidURL, site, url)
	}
	return id, nil
}

func buildURL(site, id string) string {
	tmpl, _ := templates().Get(site)
	return tmpl.BuildURL(id)
}

func ExtractASIN(url string) (string, error) {
	return extractID("amazon", url)
}

func BuildAmazonURL(asin string) string {
	return buildURL("amazon", asin)
}

func ExtractSKU(url string) (string, error) {
	return extractID("bestbuy", url)
}

func BuildBestBuyURL(sku string) string {
	return buildURL("bestbuy", sku)
}
