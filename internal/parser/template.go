package parser

import (
	"embed"
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml
var templateFS embed.FS

var ErrUnsupportedURL = errors.New("url does not match any site template")

// Template is the compiled pattern table for one retailer.
type Template struct {
	Name            string
	Hosts           []string
	MatchSubdomains bool
	PathMarkers     []string
	BlockMarkers    []string
	IDPattern       *regexp.Regexp
	CanonicalURL    string

	Title        Cascade
	Price        Cascade
	Image        Cascade
	Availability Cascade
	Rating       Cascade
	ReviewCount  Cascade

	Search *SearchSpec
}

// SearchSpec describes how to turn a term into product URLs for a template.
type SearchSpec struct {
	URL         string
	ProductURL  string
	IDPattern   *regexp.Regexp
	LinkPattern *regexp.Regexp
	Limit       int
}

type templateFile struct {
	Name            string   `yaml:"name"`
	Hosts           []string `yaml:"hosts"`
	MatchSubdomains bool     `yaml:"match_subdomains"`
	PathMarkers     []string `yaml:"path_markers"`
	BlockMarkers    []string `yaml:"block_markers"`
	IDPattern       string   `yaml:"id_pattern"`
	CanonicalURL    string   `yaml:"canonical_url"`
	Fields          struct {
		Title        []strategySpec `yaml:"title"`
		Price        []strategySpec `yaml:"price"`
		Image        []strategySpec `yaml:"image"`
		Availability []strategySpec `yaml:"availability"`
		Rating       []strategySpec `yaml:"rating"`
		ReviewCount  []strategySpec `yaml:"review_count"`
	} `yaml:"fields"`
	Search *struct {
		URL         string `yaml:"url"`
		ProductURL  string `yaml:"product_url"`
		IDPattern   string `yaml:"id_pattern"`
		LinkPattern string `yaml:"link_pattern"`
		Limit       int    `yaml:"limit"`
	} `yaml:"search"`
}

type strategySpec struct {
	Selector string `yaml:"selector"`
	Attr     string `yaml:"attr"`
	Regex    string `yaml:"regex"`
	Group    *int   `yaml:"group"`
	RankBy   string `yaml:"rank_by"`
	MinRank  int    `yaml:"min_rank"`
}

func (s strategySpec) compile() (Strategy, error) {
	switch {
	case s.Selector != "" && s.Regex != "":
		return nil, fmt.Errorf("strategy sets both selector %q and regex %q", s.Selector, s.Regex)
	case s.Selector != "":
		return SelectorStrategy{Selector: s.Selector, Attr: s.Attr}, nil
	case s.Regex != "":
		re, err := regexp.Compile(s.Regex)
		if err != nil {
			return nil, fmt.Errorf("failed to compile %q: %w", s.Regex, err)
		}
		group := 1
		if s.Group != nil {
			group = *s.Group
		}
		if group > re.NumSubexp() {
			return nil, fmt.Errorf("pattern %q has no group %d", s.Regex, group)
		}
		if s.RankBy == "" {
			return RegexStrategy{Pattern: re, Group: group}, nil
		}
		rank, err := regexp.Compile(s.RankBy)
		if err != nil {
			return nil, fmt.Errorf("failed to compile rank pattern %q: %w", s.RankBy, err)
		}
		return RankedRegexStrategy{Pattern: re, Group: group, RankBy: rank, MinRank: s.MinRank}, nil
	default:
		return nil, errors.New("strategy needs a selector or a regex")
	}
}

func compileCascade(field string, specs []strategySpec) (Cascade, error) {
	c := make(Cascade, 0, len(specs))
	for i, spec := range specs {
		s, err := spec.compile()
		if err != nil {
			return nil, fmt.Errorf("field %s, strategy %d: %w", field, i, err)
		}
		c = append(c, s)
	}
	return c, nil
}

// ParseTemplate compiles one YAML pattern table.
func ParseTemplate(data []byte) (*Template, error) {
	var f templateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode template: %w", err)
	}
	if f.Name == "" || len(f.Hosts) == 0 {
		return nil, errors.New("template needs a name and at least one host")
	}

	t := &Template{
		Name:            f.Name,
		Hosts:           f.Hosts,
		MatchSubdomains: f.MatchSubdomains,
		PathMarkers:     f.PathMarkers,
		BlockMarkers:    f.BlockMarkers,
		CanonicalURL:    f.CanonicalURL,
	}

	if f.IDPattern != "" {
		re, err := regexp.Compile(f.IDPattern)
		if err != nil {
			return nil, fmt.Errorf("template %s: id_pattern: %w", f.Name, err)
		}
		t.IDPattern = re
	}

	fields := []struct {
		name  string
		specs []strategySpec
		dst   *Cascade
	}{
		{"title", f.Fields.Title, &t.Title},
		{"price", f.Fields.Price, &t.Price},
		{"image", f.Fields.Image, &t.Image},
		{"availability", f.Fields.Availability, &t.Availability},
		{"rating", f.Fields.Rating, &t.Rating},
		{"review_count", f.Fields.ReviewCount, &t.ReviewCount},
	}
	for _, fld := range fields {
		c, err := compileCascade(fld.name, fld.specs)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", f.Name, err)
		}
		*fld.dst = c
	}

	if s := f.Search; s != nil {
		spec := &SearchSpec{URL: s.URL, ProductURL: s.ProductURL, Limit: s.Limit}
		var err error
		if spec.IDPattern, err = regexp.Compile(s.IDPattern); err != nil {
			return nil, fmt.Errorf("template %s: search id_pattern: %w", f.Name, err)
		}
		if spec.LinkPattern, err = regexp.Compile(s.LinkPattern); err != nil {
			return nil, fmt.Errorf("template %s: search link_pattern: %w", f.Name, err)
		}
		if spec.Limit <= 0 {
			spec.Limit = 5
		}
		t.Search = spec
	}

	return t, nil
}

// Matches reports whether u is a product page this template can extract.
func (t *Template) Matches(u *url.URL) bool {
	if u == nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}

	host := strings.ToLower(u.Hostname())
	hostOK := false
	for _, h := range t.Hosts {
		if host == h || host == "www."+h || (t.MatchSubdomains && strings.HasSuffix(host, "."+h)) {
			hostOK = true
			break
		}
	}
	if !hostOK {
		return false
	}

	for _, marker := range t.PathMarkers {
		if strings.Contains(u.Path, marker) {
			return true
		}
	}
	return false
}

// Blocked reports whether body carries one of the template's anti-automation notices.
func (t *Template) Blocked(body string) (string, bool) {
	for _, marker := range t.BlockMarkers {
		if strings.Contains(body, marker) {
			return marker, true
		}
	}
	return "", false
}

// ExtractID pulls the retailer's product identifier (ASIN, SKU) out of a URL.
func (t *Template) ExtractID(rawURL string) (string, bool) {
	if t.IDPattern == nil {
		return "", false
	}
	m := t.IDPattern.FindStringSubmatch(rawURL)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}

// BuildURL renders the canonical product URL for an identifier.
func (t *Template) BuildURL(id string) string {
	return strings.ReplaceAll(t.CanonicalURL, "{id}", id)
}

// Registry holds the compiled templates in a stable order.
type Registry struct {
	templates []*Template
}

func NewRegistry(templates ...*Template) *Registry {
	return &Registry{templates: templates}
}

// LoadRegistry compiles every embedded template.
func LoadRegistry() (*Registry, error) {
	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".yaml") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	reg := &Registry{}
	for _, name := range names {
		data, err := templateFS.ReadFile(path.Join("templates", name))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		t, err := ParseTemplate(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		reg.templates = append(reg.templates, t)
	}
	return reg, nil
}

func MustLoadRegistry() *Registry {
	reg, err := LoadRegistry()
	if err != nil {
		panic(err)
	}
	return reg
}

// Match finds the template for a product URL.
func (r *Registry) Match(rawURL string) (*Template, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedURL, err)
	}
	for _, t := range r.templates {
		if t.Matches(u) {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedURL, rawURL)
}

func (r *Registry) Get(name string) (*Template, bool) {
	for _, t := range r.templates {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

func (r *Registry) Templates() []*Template {
	return append([]*Template(nil), r.templates...)
}
