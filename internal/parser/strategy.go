package parser

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Page wraps raw HTML and parses it into a goquery document on first use.
type Page struct {
	HTML   string
	doc    *goquery.Document
	parsed bool
}

func NewPage(html string) *Page {
	return &Page{HTML: html}
}

// Document returns the parsed DOM, or nil if the markup could not be read.
func (p *Page) Document() *goquery.Document {
	if !p.parsed {
		p.parsed = true
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.HTML))
		if err == nil {
			p.doc = doc
		}
	}
	return p.doc
}

// Strategy is one way of pulling a raw field value out of a page.
type Strategy interface {
	TryExtract(page *Page) (string, bool)
}

// Cascade runs strategies in order and returns the first value the accept
// function takes. accept may rewrite the value.
type Cascade []Strategy

func (c Cascade) Run(page *Page, accept func(string) (string, bool)) (string, bool) {
	for _, s := range c {
		raw, ok := s.TryExtract(page)
		if !ok {
			continue
		}
		if v, ok := accept(raw); ok {
			return v, true
		}
	}
	return "", false
}

// SelectorStrategy reads the text or an attribute of the first matching
// element with a non-empty value.
type SelectorStrategy struct {
	Selector string
	Attr     string
}

func (s SelectorStrategy) TryExtract(page *Page) (string, bool) {
	doc := page.Document()
	if doc == nil {
		return "", false
	}

	var value string
	doc.Find(s.Selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		var v string
		if s.Attr != "" {
			v, _ = sel.Attr(s.Attr)
		} else {
			v = sel.Text()
		}
		if strings.TrimSpace(v) != "" {
			value = v
			return false
		}
		return true
	})

	return value, value != ""
}

// RegexStrategy returns capture group Group of the first match against the
// raw HTML. Group 0 is the whole match.
type RegexStrategy struct {
	Pattern *regexp.Regexp
	Group   int
}

func (s RegexStrategy) TryExtract(page *Page) (string, bool) {
	m := s.Pattern.FindStringSubmatch(page.HTML)
	if m == nil || s.Group >= len(m) || strings.TrimSpace(m[s.Group]) == "" {
		return "", false
	}
	return m[s.Group], true
}

// RankedRegexStrategy collects every match, ranks each by the first number
// RankBy finds inside it, drops ranks not above MinRank, and returns the
// highest.
type RankedRegexStrategy struct {
	Pattern *regexp.Regexp
	Group   int
	RankBy  *regexp.Regexp
	MinRank int
}

func (s RankedRegexStrategy) TryExtract(page *Page) (string, bool) {
	type ranked struct {
		value string
		rank  int
	}

	var candidates []ranked
	for _, m := range s.Pattern.FindAllStringSubmatch(page.HTML, -1) {
		if s.Group >= len(m) {
			continue
		}
		rm := s.RankBy.FindStringSubmatch(m[s.Group])
		if len(rm) < 2 {
			continue
		}
		rank, err := strconv.Atoi(rm[1])
		if err != nil || rank <= s.MinRank {
			continue
		}
		candidates = append(candidates, ranked{value: m[s.Group], rank: rank})
	}

	if len(candidates) == 0 {
		return "", false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].rank > candidates[j].rank
	})
	return candidates[0].value, true
}
