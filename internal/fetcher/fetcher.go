// Package fetcher issues single HTTP GET requests that look like they come
// from a desktop browser. It holds no business logic: status handling and
// retries belong to the caller.
package fetcher

import (
	"compress/gzip"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
)

const (
	DefaultTimeout = 20 * time.Second
	MaxBodyBytes   = 16 << 20
)

var (
	// ErrTransport marks network, DNS, TLS and timeout failures.
	ErrTransport    = errors.New("transport error")
	ErrInvalidURL   = errors.New("invalid URL")
	// ErrBodyTooLarge is the cause when a body exceeds the size limit.
	ErrBodyTooLarge = errors.New("body exceeds size limit")
)

// Error describes a failed fetch. Every Error matches ErrTransport.
type Error struct {
	URL     string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	return target == ErrTransport
}

// Response is the raw result of a GET. OK is false for non-2xx statuses.
type Response struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	OK          bool
}

func (r *Response) Text() string {
	return string(r.Body)
}

// Fetcher is implemented by the HTTP client here and by the browser engine.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Response, error)
	FetchAsset(ctx context.Context, url string) (*Response, error)
}

type Options struct {
	Timeout      time.Duration
	UserAgents   []string
	Transport    http.RoundTripper
	// MaxBodyBytes caps decoded bodies. Zero means MaxBodyBytes.
	MaxBodyBytes int64
	Logger       *slog.Logger
}

// HTTPFetcher sends GET requests with a browser header set and rotates the
// User-Agent round-robin across calls.
type HTTPFetcher struct {
	client     *http.Client
	userAgents []string
	next       int
	mu         sync.Mutex
	maxBody    int64
	logger     *slog.Logger
}

func New(opts Options) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if len(opts.UserAgents) == 0 {
		opts.UserAgents = []string{defaultUserAgent}
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = MaxBodyBytes
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: opts.Transport,
		},
		userAgents: opts.UserAgents,
		maxBody:    opts.MaxBodyBytes,
		logger:     opts.Logger.With("component", "fetcher"),
	}
}

// Fetch requests an HTML document.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	return f.do(ctx, rawURL, documentHeaders)
}

// FetchAsset requests an image with image-flavoured Accept and Sec-Fetch headers.
func (f *HTTPFetcher) FetchAsset(ctx context.Context, rawURL string) (*Response, error) {
	return f.do(ctx, rawURL, assetHeaders)
}

func (f *HTTPFetcher) do(ctx context.Context, rawURL string, headers func(*http.Request, *url.URL)) (*Response, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	req.Header.Set("User-Agent", f.nextUserAgent())
	headers(req, parsed)

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &Error{URL: rawURL, Message: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	body, err := readBody(resp, f.maxBody)
	if err != nil {
		return nil, &Error{URL: rawURL, Message: "failed to read body", Cause: err}
	}

	f.logger.Debug("fetched",
		"url", rawURL,
		"status_code", resp.StatusCode,
		"bytes", len(body),
		"duration", time.Since(start))

	return &Response{
		URL:         rawURL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		OK:          resp.StatusCode >= 200 && resp.StatusCode < 300,
	}, nil
}

func (f *HTTPFetcher) nextUserAgent() string {
	f.mu.Lock()
	defer f.mu.Unlock()

	ua := f.userAgents[f.next%len(f.userAgents)]
	f.next++
	return ua
}

// readBody undoes the Content-Encoding. Setting Accept-Encoding by hand turns
// off net/http's transparent gzip. A body longer than limit is an error, never
// a truncated result.
func readBody(resp *http.Response, limit int64) ([]byte, error) {
	var r io.Reader = resp.Body

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer gz.Close()
		r = gz
	case "br":
		r = brotli.NewReader(resp.Body)
	case "deflate":
		zr, err := zlib.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("deflate: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w of %d bytes", ErrBodyTooLarge, limit)
	}
	return body, nil
}
