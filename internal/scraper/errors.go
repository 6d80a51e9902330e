package scraper

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidURL         = errors.New("invalid product URL")
	ErrBlocked            = errors.New("blocked by anti-bot page")
	ErrHTTPStatus         = errors.New("unexpected HTTP status")
	ErrExtractionEmpty    = errors.New("no title or price extracted")
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
	ErrNoSearchTemplate   = errors.New("template has no search configuration")
)

// StatusError carries a non-2xx status code and matches ErrHTTPStatus.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

func (e *StatusError) Is(target error) bool {
	return target == ErrHTTPStatus
}

// BlockError names the marker that identified a soft block.
type BlockError struct {
	URL        string
	Marker     string
	StatusCode int
}

func (e *BlockError) Error() string {
	return fmt.Sprintf("%s: soft block marker %q (status %d)", e.URL, e.Marker, e.StatusCode)
}

func (e *BlockError) Is(target error) bool {
	return target == ErrBlocked
}
