package scraper

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync"

	robotstxt "github.com/temoto/robotstxt"

	"github.com/maltedev/priceguess-ingest/internal/fetcher"
)

var ErrDisallowed = errors.New("disallowed by robots.txt")

// RobotsGate answers robots.txt questions, fetching each host's file once.
// A robots.txt that cannot be fetched allows everything.
type RobotsGate struct {
	fetcher fetcher.Fetcher
	agent   string
	logger  *slog.Logger

	mu    sync.Mutex
	hosts map[string]*robotstxt.RobotsData
}

func NewRobotsGate(f fetcher.Fetcher, agent string, logger *slog.Logger) *RobotsGate {
	if agent == "" {
		agent = "*"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RobotsGate{
		fetcher: f,
		agent:   agent,
		logger:  logger.With("component", "robots"),
		hosts:   make(map[string]*robotstxt.RobotsData),
	}
}

func (g *RobotsGate) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}

	data := g.load(ctx, u)
	if data == nil {
		return true
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return data.FindGroup(g.agent).Test(path)
}

func (g *RobotsGate) load(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	key := u.Scheme + "://" + u.Host

	g.mu.Lock()
	data, ok := g.hosts[key]
	g.mu.Unlock()
	if ok {
		return data
	}

	resp, err := g.fetcher.Fetch(ctx, key+"/robots.txt")
	if err != nil {
		g.logger.Warn("failed to fetch robots.txt", "host", u.Host, "error", err)
		return nil
	}

	data, err = robotstxt.FromStatusAndBytes(resp.StatusCode, resp.Body)
	if err != nil {
		g.logger.Warn("failed to parse robots.txt", "host", u.Host, "error", err)
		data = nil
	}

	g.mu.Lock()
	g.hosts[key] = data
	g.mu.Unlock()
	return data
}
