package scraper

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/priceguess-ingest/internal/parser"
)

const searchPage = `<html><body>
	<div data-asin="B0AAAAAAA1"><a href="/Mouse-Wireless/dp/B0AAAAAAA1/ref=sr_1_1?keywords=mouse">Mouse</a></div>
	<div data-asin="B0AAAAAAA2"></div>
	<div data-asin=""></div>
	<a href="/gp/product/B0AAAAAAA3?th=1">Keyboard</a>
	<a href="/Headset/dp/B0AAAAAAA2">Headset</a>
	<a href="/customer-reviews/R123">Reviews</a>
</body></html>`

func amazonTemplate(t *testing.T) *parser.Template {
	t.Helper()
	tmpl, ok := parser.MustLoadRegistry().Get("amazon")
	require.True(t, ok)
	return tmpl
}

func TestExtractProductURLs(t *testing.T) {
	tmpl := amazonTemplate(t)

	urls := ExtractProductURLs(searchPage, tmpl, 10)

	assert.Equal(t, []string{
		"https://www.amazon.com/dp/B0AAAAAAA1",
		"https://www.amazon.com/dp/B0AAAAAAA2",
		"https://www.amazon.com/dp/B0AAAAAAA3",
	}, urls)
}

func TestExtractProductURLs_AnchorsCanonicalised(t *testing.T) {
	page := `<a href="/Logitech-Mouse/dp/B0CCCCCCC1/ref=sr_1_2?keywords=mouse&th=1">Mouse</a>
		<a href="/exec/obidos/ASIN/B0CCCCCCC2/">Old link</a>
		<a href="/gp/product/B0CCCCCCC1">Same product</a>`

	urls := ExtractProductURLs(page, amazonTemplate(t), 10)

	assert.Equal(t, []string{
		"https://www.amazon.com/dp/B0CCCCCCC1",
		"https://www.amazon.com/dp/B0CCCCCCC2",
	}, urls)
}

func TestExtractProductURLs_Limit(t *testing.T) {
	tmpl := amazonTemplate(t)

	urls := ExtractProductURLs(searchPage, tmpl, 2)

	assert.Len(t, urls, 2)
	assert.Equal(t, "https://www.amazon.com/dp/B0AAAAAAA1", urls[0])
}

func TestExtractProductURLs_NoResults(t *testing.T) {
	assert.Empty(t, ExtractProductURLs("<html></html>", amazonTemplate(t), 5))
}

func TestNewDiscoverer_RequiresSearchSpec(t *testing.T) {
	tmpl, ok := parser.MustLoadRegistry().Get("bestbuy")
	require.True(t, ok)
	require.Nil(t, tmpl.Search)

	_, err := NewDiscoverer(&scriptedFetcher{}, tmpl, DiscoveryOptions{})
	assert.ErrorIs(t, err, ErrNoSearchTemplate)
}

func TestDiscoverer_SearchURL(t *testing.T) {
	d, err := NewDiscoverer(&scriptedFetcher{}, amazonTemplate(t), DiscoveryOptions{})
	require.NoError(t, err)

	assert.Equal(t, "https://www.amazon.com/s?k=wireless%20mouse", d.SearchURL("  wireless mouse "))
	assert.Equal(t, "https://www.amazon.com/s?k=usb-c%20%26%20hdmi", d.SearchURL("usb-c & hdmi"))
}

func TestDiscoverer_Discover(t *testing.T) {
	f := &scriptedFetcher{steps: []step{{status: 200, body: searchPage}}}
	d, err := NewDiscoverer(f, amazonTemplate(t), DiscoveryOptions{Limit: 2})
	require.NoError(t, err)

	urls, err := d.Discover(context.Background(), "mouse")

	require.NoError(t, err)
	assert.Len(t, urls, 2)
	assert.Equal(t, []string{"https://www.amazon.com/s?k=mouse"}, f.calls)
}

func TestDiscoverer_DiscoverErrors(t *testing.T) {
	tests := []struct {
		name   string
		steps  []step
		target error
	}{
		{name: "blocked", steps: []step{{status: 200, body: captchaPage}}, target: ErrBlocked},
		{name: "status", steps: []step{{status: 503, body: "unavailable"}}, target: ErrHTTPStatus},
		{name: "transport", steps: []step{{err: errTest}}, target: errTest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDiscoverer(&scriptedFetcher{steps: tt.steps}, amazonTemplate(t), DiscoveryOptions{})
			require.NoError(t, err)

			urls, err := d.Discover(context.Background(), "mouse")

			assert.Nil(t, urls)
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestDiscoverer_EmptyTerm(t *testing.T) {
	f := &scriptedFetcher{}
	d, err := NewDiscoverer(f, amazonTemplate(t), DiscoveryOptions{})
	require.NoError(t, err)

	_, err = d.Discover(context.Background(), "   ")
	assert.Error(t, err)
	assert.Zero(t, f.callCount())
}

func TestDiscoverer_RespectsRobots(t *testing.T) {
	f := &scriptedFetcher{steps: []step{
		{status: 200, body: "User-agent: *\nDisallow: /s\n"},
		{status: 200, body: searchPage},
	}}
	d, err := NewDiscoverer(f, amazonTemplate(t), DiscoveryOptions{Robots: NewRobotsGate(f, "priceguess", nil)})
	require.NoError(t, err)

	_, err = d.Discover(context.Background(), "mouse")

	assert.ErrorIs(t, err, ErrDisallowed)
	assert.Equal(t, []string{"https://www.amazon.com/robots.txt"}, f.calls)
}

var errTest = errors.New("connection reset")
