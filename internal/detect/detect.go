// Package detect scores lead list headers against the semantic fields a
// campaign upload needs (phone, name, email) and suggests a column
// mapping. Detection is purely advisory; the caller confirms or overrides
// the mapping before validation runs.
package detect

import (
	"sort"
	"strings"
)

// Field identifies a semantic column the pipeline cares about.
type Field string

const (
	FieldPhone Field = "phone"
	FieldName  Field = "name"
	FieldEmail Field = "email"
)

// Fields lists all semantic fields in a fixed order.
var Fields = []Field{FieldPhone, FieldName, FieldEmail}

// fieldPatterns holds the substrings each semantic field is known by.
var fieldPatterns = map[Field][]string{
	FieldPhone: {"phone", "mobile", "cell", "number", "telephone", "contact"},
	FieldName:  {"name", "customer", "client", "person", "lead", "fullname", "firstname"},
	FieldEmail: {"email", "mail", "emailaddress"},
}

// maxAlternates caps how many runner-up headers a Detection carries.
const maxAlternates = 3

// Detection is the suggestion for one semantic field.
type Detection struct {
	// Header is the best-matching header, or "" when nothing scored.
	Header string `json:"header"`

	// Confidence is a normalized score in [0,1].
	Confidence float64 `json:"confidence"`

	// Alternates holds up to three runner-up headers, best first.
	Alternates []string `json:"alternates,omitempty"`
}

// Result maps each semantic field to its detection.
type Result map[Field]Detection

// Detect scores every header against every semantic field's patterns and
// returns the best candidate per field. It is a pure function: the same
// header list always produces the same result.
func Detect(headers []string) Result {
	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = normalizeHeader(h)
	}

	result := make(Result, len(Fields))
	for _, field := range Fields {
		result[field] = detectField(headers, normalized, fieldPatterns[field])
	}
	return result
}

// detectField ranks headers for one field's pattern list.
func detectField(headers, normalized []string, patterns []string) Detection {
	type candidate struct {
		index int
		score int
	}

	var candidates []candidate
	for i, norm := range normalized {
		score := scoreHeader(norm, patterns)
		if score > 0 {
			candidates = append(candidates, candidate{index: i, score: score})
		}
	}

	if len(candidates) == 0 {
		return Detection{}
	}

	// Stable sort keeps source column order for equal scores, which makes
	// detection deterministic across runs.
	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].score > candidates[b].score
	})

	det := Detection{
		Header:     headers[candidates[0].index],
		Confidence: confidence(candidates[0].score),
	}
	for _, c := range candidates[1:] {
		if len(det.Alternates) == maxAlternates {
			break
		}
		det.Alternates = append(det.Alternates, headers[c.index])
	}
	return det
}

// scoreHeader accumulates pattern match points for one normalized header:
// exact match 10, header contains pattern 5, pattern contains header 2
// (only for headers longer than 3 characters, so tiny headers like "no"
// don't match everything).
func scoreHeader(norm string, patterns []string) int {
	if norm == "" {
		return 0
	}

	score := 0
	for _, p := range patterns {
		switch {
		case norm == p:
			score += 10
		case strings.Contains(norm, p):
			score += 5
		case len(norm) > 3 && strings.Contains(p, norm):
			score += 2
		}
	}
	return score
}

// confidence normalizes a raw score to [0,1], saturating at 10.
func confidence(score int) float64 {
	c := float64(score) / 10
	if c > 1 {
		return 1
	}
	return c
}

// normalizeHeader lowercases a header and strips everything that is not
// a letter or digit, so "Mobile Number", "mobile_number" and
// "MobileNumber" all compare equal.
func normalizeHeader(h string) string {
	var b strings.Builder
	b.Grow(len(h))
	for _, r := range strings.ToLower(h) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
