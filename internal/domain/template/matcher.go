package template

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// The detection listing and the server-side bulk processor historically used
// different cutoffs; both are preserved pending a product decision on
// unification.
const (
	// DetectThreshold is the minimum confidence for a template to appear in
	// the candidate list shown during file analysis.
	DetectThreshold = 0.3
	// AutoSelectThreshold is the minimum confidence for the processor to pick
	// a template without operator confirmation.
	AutoSelectThreshold = 0.5
)

const requiredBoost = 0.3

// MatchResult is the outcome of matching file headers against one template
type MatchResult struct {
	Schema      *Schema  `json:"-"`
	Name        string   `json:"name"`
	Confidence  float64  `json:"confidence"`
	Matched     []string `json:"matched_columns"`
	Missing     []string `json:"missing_columns"`
	Extra       []string `json:"extra_columns"`
	YearColumns []string `json:"year_columns,omitempty"`

	// Suggestions maps each missing column to the closest file header,
	// used to pre-fill the manual mapping step.
	Suggestions map[string]string `json:"suggestions,omitempty"`
}

// MatchHeaders scores how well the file headers fit the schema.
//
// Confidence starts at matched/total template columns, gains up to 0.3
// proportionally to matched required columns, is multiplied by 0.7 when the
// file carries more unmatched extra columns than the template has columns,
// and is clamped to [0,1]. Year-like headers count as matched when the
// template declares variable year columns.
func MatchHeaders(s *Schema, headers []string) MatchResult {
	result := MatchResult{Schema: s, Name: s.Name}

	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = strings.ToLower(strings.TrimSpace(h))
	}

	matchedHeader := make([]bool, len(headers))
	yearRe := s.YearPattern()

	for _, col := range s.Definition.Columns {
		want := strings.ToLower(col.Name)
		found := false
		for i, h := range normalized {
			if h == want {
				matchedHeader[i] = true
				found = true
				break
			}
		}
		if found {
			result.Matched = append(result.Matched, col.Name)
		} else {
			result.Missing = append(result.Missing, col.Name)
		}
	}

	if s.Definition.VariableYearColumns {
		for i, h := range headers {
			trimmed := strings.TrimSpace(h)
			if !matchedHeader[i] && yearRe.MatchString(trimmed) {
				matchedHeader[i] = true
				result.YearColumns = append(result.YearColumns, trimmed)
			}
		}
	}

	for i, h := range headers {
		if !matchedHeader[i] {
			result.Extra = append(result.Extra, strings.TrimSpace(h))
		}
	}

	total := len(s.Definition.Columns)
	if total == 0 {
		return result
	}

	confidence := float64(len(result.Matched)) / float64(total)

	required := s.RequiredColumns()
	if len(required) > 0 {
		matchedRequired := 0
		for _, col := range required {
			for _, m := range result.Matched {
				if strings.EqualFold(m, col.Name) {
					matchedRequired++
					break
				}
			}
		}
		confidence += requiredBoost * float64(matchedRequired) / float64(len(required))
	}

	if len(result.Extra) > total {
		confidence *= 0.7
	}

	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	result.Confidence = confidence

	if len(result.Missing) > 0 {
		result.Suggestions = suggestHeaders(result.Missing, headers)
	}

	return result
}

// DetectTemplates ranks all candidate schemas against the file headers,
// keeping those above the detection threshold, best first.
func DetectTemplates(schemas []*Schema, headers []string) []MatchResult {
	candidates := make([]MatchResult, 0, len(schemas))
	for _, s := range schemas {
		m := MatchHeaders(s, headers)
		if m.Confidence > DetectThreshold {
			candidates = append(candidates, m)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})
	return candidates
}

// suggestHeaders pairs each missing template column with the most similar
// file header, if any ranks close enough.
func suggestHeaders(missing, headers []string) map[string]string {
	suggestions := make(map[string]string)
	for _, col := range missing {
		ranks := fuzzy.RankFindNormalizedFold(col, headers)
		if len(ranks) == 0 {
			continue
		}
		sort.Sort(ranks)
		best := ranks[0]
		// Reject matches that differ in more than half the column name.
		if best.Distance >= 0 && best.Distance <= len(col)/2 {
			suggestions[col] = best.Target
		}
	}
	if len(suggestions) == 0 {
		return nil
	}
	return suggestions
}
