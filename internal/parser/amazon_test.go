package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amazonExtractor(t *testing.T) *Extractor {
	t.Helper()
	reg, err := LoadRegistry()
	require.NoError(t, err)
	tmpl, ok := reg.Get("amazon")
	require.True(t, ok)
	return NewExtractor(tmpl)
}

func TestAmazonExtract_TitleAndWholePrice(t *testing.T) {
	html := `<html><body>
		<span id="productTitle">Wireless Mouse</span>
		<span class="a-price-whole">19.99</span>
	</body></html>`

	record := amazonExtractor(t).Extract("https://www.amazon.com/dp/B000000001", html)

	require.NotNil(t, record.Title)
	require.NotNil(t, record.Price)
	assert.Equal(t, "Wireless Mouse", *record.Title)
	assert.InDelta(t, 19.99, *record.Price, 0.0001)
	assert.Equal(t, "USD", record.Currency)
	assert.Equal(t, "amazon", record.Site)
	assert.Equal(t, "https://www.amazon.com/dp/B000000001", record.SourceURL)
}

func TestAmazonExtract_PriceCascade(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		price    float64
		currency string
	}{
		{
			name:     "offscreen price",
			html:     `<span class="a-price"><span class="a-offscreen">$34.95</span></span>`,
			price:    34.95,
			currency: "USD",
		},
		{
			name:     "deal price block",
			html:     `<span id="priceblock_dealprice">$1,049.00</span>`,
			price:    1049,
			currency: "USD",
		},
		{
			name:     "empty whole part falls through to our price",
			html:     `<span class="a-price-whole"> </span><span id="priceblock_ourprice">£12.49</span>`,
			price:    12.49,
			currency: "GBP",
		},
		{
			name:     "non numeric text falls through to regex fallback",
			html:     `<span class="a-price-whole">See options</span><div>Only €7,50 today</div>`,
			price:    7.5,
			currency: "EUR",
		},
		{
			name:     "fallback regex against raw html",
			html:     `<script>var p = "₹1,999";</script>`,
			price:    1999,
			currency: "INR",
		},
	}

	ex := amazonExtractor(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := ex.Extract("https://www.amazon.com/dp/B000000001", tt.html)

			require.NotNil(t, record.Price)
			assert.InDelta(t, tt.price, *record.Price, 0.0001)
			assert.Equal(t, tt.currency, record.Currency)
		})
	}
}

func TestAmazonExtract_MissingFieldsStayUnset(t *testing.T) {
	inputs := []string{
		``,
		`<html><body><p>Nothing to see</p></body></html>`,
		`<div class="a-price-whole">`,
		`<<<not html>>>`,
	}

	ex := amazonExtractor(t)
	for _, html := range inputs {
		assert.NotPanics(t, func() {
			record := ex.Extract("https://www.amazon.com/dp/B000000001", html)
			assert.Nil(t, record.Price)
			assert.Nil(t, record.Title)
			assert.Nil(t, record.ImageURL)
			assert.Equal(t, "USD", record.Currency)
			assert.True(t, record.Empty())
		})
	}
}

func TestAmazonExtract_ImageRatingReviews(t *testing.T) {
	html := `<html><body>
		<h1 class="a-size-large">  Stainless &amp; Steel   Water Bottle </h1>
		<img id="landingImage" src="https://m.media-amazon.com/images/I/small.jpg"
		     data-old-hires="https://m.media-amazon.com/images/I/large.jpg">
		<div id="availability"><span> In Stock </span></div>
		<span class="a-icon-alt">4.6 out of 5 stars</span>
		<span id="acrCustomerReviewText">12,345 ratings</span>
		<span class="a-price"><span class="a-offscreen">CA$29.99</span></span>
	</body></html>`

	record := amazonExtractor(t).Extract("https://www.amazon.ca/dp/B000000002", html)

	require.NotNil(t, record.Title)
	assert.Equal(t, "Stainless & Steel Water Bottle", *record.Title)

	require.NotNil(t, record.ImageURL)
	assert.Equal(t, "https://m.media-amazon.com/images/I/large.jpg", *record.ImageURL)

	assert.Equal(t, "In Stock", record.Availability)

	require.NotNil(t, record.Rating)
	assert.InDelta(t, 4.6, *record.Rating, 0.001)

	require.NotNil(t, record.ReviewCount)
	assert.Equal(t, 12345, *record.ReviewCount)

	require.NotNil(t, record.Price)
	assert.Equal(t, "CAD", record.Currency)
}

func TestAmazonExtract_ImageFallsBackToOpenGraph(t *testing.T) {
	html := `<html><head><meta property="og:image" content="//images.example.com/p.png"></head>
		<body><span id="productTitle">Lamp</span></body></html>`

	record := amazonExtractor(t).Extract("https://www.amazon.com/dp/B000000003", html)

	require.NotNil(t, record.ImageURL)
	assert.Equal(t, "https://images.example.com/p.png", *record.ImageURL)
	assert.Nil(t, record.Price)
	assert.False(t, record.Empty())
}
