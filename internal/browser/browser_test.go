package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/priceguess-ingest/internal/config"
	"github.com/maltedev/priceguess-ingest/internal/fetcher"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	assert.True(t, opts.Headless)
	assert.Equal(t, 30*time.Second, opts.Timeout)
	assert.Equal(t, 1920, opts.ViewportWidth)
	assert.Equal(t, 1080, opts.ViewportHeight)
	assert.Equal(t, "en-US", opts.Locale)
	assert.NotEmpty(t, opts.UserAgent)
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.BrowserConfig{
		Headless:       false,
		Timeout:        12 * time.Second,
		ViewportWidth:  1280,
		ViewportHeight: 800,
		Locale:         "en-GB",
	}, "test-agent")

	assert.False(t, opts.Headless)
	assert.Equal(t, 12*time.Second, opts.Timeout)
	assert.Equal(t, 1280, opts.ViewportWidth)
	assert.Equal(t, 800, opts.ViewportHeight)
	assert.Equal(t, "en-GB", opts.Locale)
	assert.Equal(t, "America/New_York", opts.TimezoneID)
	assert.Equal(t, "test-agent", opts.UserAgent)
	assert.Equal(t, "en-US,en;q=0.9", opts.headers()["Accept-Language"])
}

func TestOptionsFromConfig_KeepsDefaultsForZeroValues(t *testing.T) {
	opts := OptionsFromConfig(config.BrowserConfig{Headless: true}, "")

	assert.Equal(t, DefaultOptions().Timeout, opts.Timeout)
	assert.Equal(t, DefaultOptions().UserAgent, opts.UserAgent)
	assert.Equal(t, 1920, opts.ViewportWidth)
}

func TestFetch_RejectsInvalidURLWithoutBrowser(t *testing.T) {
	b := &Browser{}

	for _, u := range []string{"", "ftp://example.com/x", "/dp/B000000001"} {
		_, err := b.Fetch(context.Background(), u)
		require.Error(t, err)
		assert.ErrorIs(t, err, fetcher.ErrInvalidURL, u)
	}
}

func TestFetchAsset_WithoutAssetFetcher(t *testing.T) {
	_, err := (&Browser{}).FetchAsset(context.Background(), "https://img.example.com/a.jpg")
	assert.ErrorIs(t, err, fetcher.ErrTransport)
}
