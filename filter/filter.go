package filter

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"sync"

	"github.com/dhcgn/multipart-related/model"
)

// Options captures the part filtering configuration.
type Options struct {
	IncludeHeader []string
	IncludeBody   []string
	ExcludeHeader []string
	ExcludeBody   []string
	// MediaTypes is an allow-list of "type/subtype" globs such as "image/*".
	MediaTypes []string
}

// Filter decides which parts of a multipart/related message are kept.
type Filter struct {
	includeMode   bool
	excludeMode   bool
	includeHeader []*regexp.Regexp
	includeBody   []*regexp.Regexp
	excludeHeader []*regexp.Regexp
	excludeBody   []*regexp.Regexp
	mediaTypes    []string

	mu   sync.Mutex
	hits map[string]int
}

// Stats reports the configured patterns and how often each one matched.
type Stats struct {
	IncludeHeaderPatterns []string
	IncludeBodyPatterns   []string
	ExcludeHeaderPatterns []string
	ExcludeBodyPatterns   []string
	MediaTypePatterns     []string

	IncludeHeaderHits map[string]int
	IncludeBodyHits   map[string]int
	ExcludeHeaderHits map[string]int
	ExcludeBodyHits   map[string]int
	MediaTypeHits     map[string]int
}

// New creates a new Filter from the provided options.
func New(opts Options) (*Filter, error) {
	includeHeader, err := compilePatterns(opts.IncludeHeader)
	if err != nil {
		return nil, fmt.Errorf("compile include-header pattern: %w", err)
	}
	includeBody, err := compilePatterns(opts.IncludeBody)
	if err != nil {
		return nil, fmt.Errorf("compile include-body pattern: %w", err)
	}
	excludeHeader, err := compilePatterns(opts.ExcludeHeader)
	if err != nil {
		return nil, fmt.Errorf("compile exclude-header pattern: %w", err)
	}
	excludeBody, err := compilePatterns(opts.ExcludeBody)
	if err != nil {
		return nil, fmt.Errorf("compile exclude-body pattern: %w", err)
	}

	mediaTypes := make([]string, 0, len(opts.MediaTypes))
	for _, mt := range opts.MediaTypes {
		mt = strings.ToLower(strings.TrimSpace(mt))
		if mt == "" {
			continue
		}
		if _, err := path.Match(mt, "probe/probe"); err != nil {
			return nil, fmt.Errorf("compile media-type pattern %q: %w", mt, err)
		}
		mediaTypes = append(mediaTypes, mt)
	}

	includeActive := len(includeHeader) > 0 || len(includeBody) > 0
	excludeActive := len(excludeHeader) > 0 || len(excludeBody) > 0
	if includeActive && excludeActive {
		return nil, fmt.Errorf("include and exclude filters are mutually exclusive")
	}

	return &Filter{
		includeMode:   includeActive,
		excludeMode:   excludeActive,
		includeHeader: includeHeader,
		includeBody:   includeBody,
		excludeHeader: excludeHeader,
		excludeBody:   excludeBody,
		mediaTypes:    mediaTypes,
		hits:          make(map[string]int),
	}, nil
}

// Active reports whether any pattern is configured.
func (f *Filter) Active() bool {
	return f.includeMode || f.excludeMode || len(f.mediaTypes) > 0
}

// Allows returns true if the part passes the filter criteria.
func (f *Filter) Allows(part model.Message) bool {
	if len(f.mediaTypes) > 0 && !f.matchMediaType(part) {
		return false
	}

	if f.includeMode {
		header := FormatHeaders(part.Headers)
		return f.matchAny("include-header", f.includeHeader, header) ||
			f.matchAny("include-body", f.includeBody, part.Body)
	}

	if f.excludeMode {
		header := FormatHeaders(part.Headers)
		if f.matchAny("exclude-header", f.excludeHeader, header) ||
			f.matchAny("exclude-body", f.excludeBody, part.Body) {
			return false
		}
	}

	return true
}

// Parts returns the parts that pass the filter, in their original order. A nil
// Filter keeps everything.
func (f *Filter) Parts(parts []model.Message) []model.Message {
	if f == nil || !f.Active() {
		return parts
	}
	kept := make([]model.Message, 0, len(parts))
	for _, i := range f.Indices(parts) {
		kept = append(kept, parts[i])
	}
	return kept
}

// Indices returns the positions of the parts that pass the filter.
func (f *Filter) Indices(parts []model.Message) []int {
	kept := make([]int, 0, len(parts))
	for i, p := range parts {
		if f == nil || !f.Active() || f.Allows(p) {
			kept = append(kept, i)
		}
	}
	return kept
}

// Stats returns a copy of the pattern hit counters.
func (f *Filter) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := Stats{
		IncludeHeaderPatterns: patternStrings(f.includeHeader),
		IncludeBodyPatterns:   patternStrings(f.includeBody),
		ExcludeHeaderPatterns: patternStrings(f.excludeHeader),
		ExcludeBodyPatterns:   patternStrings(f.excludeBody),
		MediaTypePatterns:     append([]string(nil), f.mediaTypes...),
		IncludeHeaderHits:     make(map[string]int),
		IncludeBodyHits:       make(map[string]int),
		ExcludeHeaderHits:     make(map[string]int),
		ExcludeBodyHits:       make(map[string]int),
		MediaTypeHits:         make(map[string]int),
	}
	buckets := map[string]map[string]int{
		"include-header": s.IncludeHeaderHits,
		"include-body":   s.IncludeBodyHits,
		"exclude-header": s.ExcludeHeaderHits,
		"exclude-body":   s.ExcludeBodyHits,
		"media-type":     s.MediaTypeHits,
	}
	for key, n := range f.hits {
		kind, pattern, _ := strings.Cut(key, "\x00")
		buckets[kind][pattern] = n
	}
	return s
}

// FormatHeaders renders a part header block as "Name: value" lines in sorted order.
func FormatHeaders(headers map[string]string) string {
	var sb strings.Builder
	for _, name := range (model.Message{Headers: headers}).HeaderNames() {
		sb.WriteString(name)
		sb.WriteString(": ")
		sb.WriteString(headers[name])
		sb.WriteString("\n")
	}
	return sb.String()
}

func (f *Filter) matchMediaType(part model.Message) bool {
	if part.ContentType == nil {
		return false
	}
	mt := strings.ToLower(part.ContentType.Type())
	for _, pattern := range f.mediaTypes {
		if ok, _ := path.Match(pattern, mt); ok {
			f.hit("media-type", pattern)
			return true
		}
	}
	return false
}

func (f *Filter) matchAny(kind string, patterns []*regexp.Regexp, text string) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			f.hit(kind, re.String())
			return true
		}
	}
	return false
}

func (f *Filter) hit(kind, pattern string) {
	f.mu.Lock()
	f.hits[kind+"\x00"+pattern]++
	f.mu.Unlock()
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", pattern, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

func patternStrings(patterns []*regexp.Regexp) []string {
	out := make([]string, 0, len(patterns))
	for _, re := range patterns {
		out = append(out, re.String())
	}
	return out
}
