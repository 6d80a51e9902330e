package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/maltedev/priceguess-ingest/internal/fetcher"
	"github.com/maltedev/priceguess-ingest/internal/parser"
)

const DefaultDiscoveryLimit = 5

type DiscoveryOptions struct {
	// Limit caps how many product URLs one term yields. Zero uses the template's limit.
	Limit  int
	Robots *RobotsGate
	Logger *slog.Logger
}

// Discoverer turns search terms into product URLs for one site template.
type Discoverer struct {
	fetcher fetcher.Fetcher
	tmpl    *parser.Template
	limit   int
	robots  *RobotsGate
	logger  *slog.Logger
}

func NewDiscoverer(f fetcher.Fetcher, tmpl *parser.Template, opts DiscoveryOptions) (*Discoverer, error) {
	if tmpl.Search == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSearchTemplate, tmpl.Name)
	}
	if opts.Limit <= 0 {
		opts.Limit = tmpl.Search.Limit
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Discoverer{
		fetcher: f,
		tmpl:    tmpl,
		limit:   opts.Limit,
		robots:  opts.Robots,
		logger:  opts.Logger.With("component", "discovery", "site", tmpl.Name),
	}, nil
}

func (d *Discoverer) SearchURL(term string) string {
	escaped := strings.ReplaceAll(url.QueryEscape(strings.TrimSpace(term)), "+", "%20")
	return strings.ReplaceAll(d.tmpl.Search.URL, "{term}", escaped)
}

// Discover fetches the results page for term and returns up to the limit of
// deduplicated product URLs.
func (d *Discoverer) Discover(ctx context.Context, term string) ([]string, error) {
	if strings.TrimSpace(term) == "" {
		return nil, errors.New("search term is empty")
	}

	searchURL := d.SearchURL(term)

	if d.robots != nil && !d.robots.Allowed(ctx, searchURL) {
		return nil, fmt.Errorf("search %q: %w", term, ErrDisallowed)
	}

	resp, err := d.fetcher.Fetch(ctx, searchURL)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", term, err)
	}

	body := resp.Text()
	if marker, blocked := d.tmpl.Blocked(body); blocked {
		return nil, fmt.Errorf("search %q: %w", term, &BlockError{URL: searchURL, Marker: marker, StatusCode: resp.StatusCode})
	}
	if !resp.OK {
		return nil, fmt.Errorf("search %q: %w", term, &StatusError{URL: searchURL, Code: resp.StatusCode})
	}

	urls := ExtractProductURLs(body, d.tmpl, d.limit)
	d.logger.Info("discovered products", "term", term, "search_url", searchURL, "count", len(urls))
	return urls, nil
}

// ExtractProductURLs unions product-id attributes and product-path anchors
// from a results page, in first-seen order. Anchors collapse onto the
// canonical product URL of their id; anchors without an id are ignored.
func ExtractProductURLs(body string, tmpl *parser.Template, limit int) []string {
	spec := tmpl.Search
	if spec == nil {
		return nil
	}
	if limit <= 0 {
		limit = DefaultDiscoveryLimit
	}

	seen := make(map[string]struct{})
	var out []string
	add := func(u string) {
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}

	for _, m := range spec.IDPattern.FindAllStringSubmatch(body, -1) {
		add(strings.ReplaceAll(spec.ProductURL, "{id}", m[1]))
	}

	for _, m := range spec.LinkPattern.FindAllStringSubmatch(body, -1) {
		path := strings.SplitN(m[1], "?", 2)[0]
		if id, ok := tmpl.ExtractID(path); ok {
			add(strings.ReplaceAll(spec.ProductURL, "{id}", id))
		}
	}

	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
