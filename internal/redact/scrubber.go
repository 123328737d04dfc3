// Package redact removes contact data and credentials from free text before
// it is sent to an external collaborator.
package redact

import (
	"fmt"
	"regexp"
	"sort"
	"time"
)

const defaultMarker = "[REDACTED]"

// Config configures a Scrubber.
type Config struct {
	Rules []Rule `koanf:"rules"`
	// Marker replaces each redacted span. Defaults to "[REDACTED]".
	Marker string `koanf:"marker"`
	// AllowList holds patterns whose matches are left in place.
	AllowList []string `koanf:"allow_list"`
}

// DefaultConfig returns a Config with DefaultRules.
func DefaultConfig() Config {
	return Config{Rules: DefaultRules(), Marker: defaultMarker}
}

// Finding is one redacted span. The matched text is never kept.
type Finding struct {
	RuleID     string `json:"rule_id"`
	StartIndex int    `json:"start"`
	EndIndex   int    `json:"end"`
}

// Result is the outcome of one Scrub call.
type Result struct {
	Scrubbed string         `json:"scrubbed"`
	Findings []Finding      `json:"findings,omitempty"`
	ByRule   map[string]int `json:"by_rule,omitempty"`
	Duration time.Duration  `json:"duration"`
}

// Total returns the number of findings.
func (r *Result) Total() int { return len(r.Findings) }

type compiledRule struct {
	id       string
	pattern  *regexp.Regexp
	keywords []*regexp.Regexp
}

type span struct {
	start, end int
}

// Scrubber redacts text. It is safe for concurrent use.
type Scrubber struct {
	rules  []compiledRule
	allow  []*regexp.Regexp
	marker string
}

// New compiles cfg into a Scrubber.
func New(cfg Config) (*Scrubber, error) {
	s := &Scrubber{marker: cfg.Marker}
	if s.marker == "" {
		s.marker = defaultMarker
	}

	for i, r := range cfg.Rules {
		if r.ID == "" {
			return nil, fmt.Errorf("rule %d: id is required", i)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %s: invalid pattern: %w", r.ID, err)
		}
		cr := compiledRule{id: r.ID, pattern: re}
		for _, kw := range r.Keywords {
			cr.keywords = append(cr.keywords, regexp.MustCompile("(?i)"+regexp.QuoteMeta(kw)))
		}
		s.rules = append(s.rules, cr)
	}

	for i, p := range cfg.AllowList {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("allow_list %d: invalid pattern: %w", i, err)
		}
		s.allow = append(s.allow, re)
	}
	return s, nil
}

// MustNew is New for static configs.
func MustNew(cfg Config) *Scrubber {
	s, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

// Scrub replaces every match with the marker. Overlapping matches from
// different rules collapse into one marker.
func (s *Scrubber) Scrub(text string) *Result {
	start := time.Now()
	res := &Result{Scrubbed: text, ByRule: make(map[string]int)}

	var spans []span
	for _, r := range s.rules {
		if !r.applies(text) {
			continue
		}
		for _, m := range r.pattern.FindAllStringIndex(text, -1) {
			if s.allowed(text[m[0]:m[1]]) {
				continue
			}
			res.Findings = append(res.Findings, Finding{RuleID: r.id, StartIndex: m[0], EndIndex: m[1]})
			res.ByRule[r.id]++
			spans = append(spans, span{m[0], m[1]})
		}
	}

	if len(spans) > 0 {
		res.Scrubbed = s.apply(text, merge(spans))
	}
	res.Duration = time.Since(start)
	return res
}

// String is Scrub returning only the redacted text.
func (s *Scrubber) String(text string) string {
	return s.Scrub(text).Scrubbed
}

func (r compiledRule) applies(text string) bool {
	if len(r.keywords) == 0 {
		return true
	}
	for _, kw := range r.keywords {
		if kw.MatchString(text) {
			return true
		}
	}
	return false
}

func (s *Scrubber) allowed(match string) bool {
	for _, re := range s.allow {
		if re.MatchString(match) {
			return true
		}
	}
	return false
}

// apply rewrites text front to back; spans must be sorted and disjoint.
func (s *Scrubber) apply(text string, spans []span) string {
	out := make([]byte, 0, len(text))
	last := 0
	for _, sp := range spans {
		out = append(out, text[last:sp.start]...)
		out = append(out, s.marker...)
		last = sp.end
	}
	out = append(out, text[last:]...)
	return string(out)
}

// merge sorts spans and joins overlapping or adjacent ones.
func merge(spans []span) []span {
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	merged := []span{spans[0]}
	for _, cur := range spans[1:] {
		last := &merged[len(merged)-1]
		if cur.start <= last.end {
			if cur.end > last.end {
				last.end = cur.end
			}
			continue
		}
		merged = append(merged, cur)
	}
	return merged
}
