package validation

import (
	"strings"

	"github.com/cloudflare/ahocorasick"
)

// forbiddenTerms are derived-metric names that must not appear as P&L
// concept labels. Derived figures are computed downstream, never uploaded.
var forbiddenTerms = []string{
	"ebit",
	"ebitda",
	"margin",
	"margen",
	"ratio",
	"percentage",
	"porcentaje",
	"%",
}

// TermScanner finds forbidden derived-metric terms inside concept labels
// with a single multi-pattern pass per label.
type TermScanner struct {
	matcher *ahocorasick.Matcher
}

func NewTermScanner() *TermScanner {
	return &TermScanner{matcher: ahocorasick.NewStringMatcher(forbiddenTerms)}
}

// Scan returns the forbidden terms present in the label, in pattern order,
// or nil when the label is clean. Matching is case-insensitive.
func (s *TermScanner) Scan(label string) []string {
	hits := s.matcher.Match([]byte(strings.ToLower(label)))
	if len(hits) == 0 {
		return nil
	}
	terms := make([]string, 0, len(hits))
	for _, idx := range hits {
		terms = append(terms, forbiddenTerms[idx])
	}
	return terms
}
