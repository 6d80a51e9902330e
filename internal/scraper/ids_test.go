package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractASIN(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"canonical", "https://www.amazon.com/dp/B08N5WRWNW", "B08N5WRWNW"},
		{"slug and ref", "https://www.amazon.com/Logitech-Wireless-Mouse/dp/B003NR57BY/ref=sr_1_3?keywords=mouse", "B003NR57BY"},
		{"gp product", "https://www.amazon.com/gp/product/B07FZ8S74R?th=1", "B07FZ8S74R"},
		{"legacy asin path", "https://www.amazon.com/exec/obidos/ASIN/0596007124", "0596007124"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractASIN(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractASIN_Invalid(t *testing.T) {
	for _, url := range []string{
		"https://www.amazon.com/s?k=mouse",
		"https://www.amazon.com/dp/short",
		"",
	} {
		_, err := ExtractASIN(url)
		assert.ErrorIs(t, err, ErrInvalidURL, url)
	}
}

func TestBuildAmazonURL(t *testing.T) {
	assert.Equal(t, "https://www.amazon.com/dp/B08N5WRWNW", BuildAmazonURL("B08N5WRWNW"))

	asin, err := ExtractASIN(BuildAmazonURL("B003NR57BY"))
	require.NoError(t, err)
	assert.Equal(t, "B003NR57BY", asin)
}

func TestExtractSKU(t *testing.T) {
	sku, err := ExtractSKU("https://www.bestbuy.com/site/6447382")
	require.NoError(t, err)
	assert.Equal(t, "6447382", sku)

	_, err = ExtractSKU("https://www.bestbuy.com/")
	assert.ErrorIs(t, err, ErrInvalidURL)
}

func TestBuildBestBuyURL(t *testing.T) {
	assert.Equal(t, "https://www.bestbuy.com/site/6447382", BuildBestBuyURL("6447382"))
}
