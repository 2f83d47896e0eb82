// Package phone normalizes raw phone input to E.164 using a default
// region for numbers entered without a country code.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// Reasons a number fails normalization. These strings surface verbatim
// in row-level validation errors, so they stay short and lowercase.
const (
	ReasonRequired      = "required"
	ReasonUnparseable   = "unable to parse"
	ReasonInvalidFormat = "invalid format"
)

// Normalizer converts raw phone strings to E.164.
type Normalizer struct {
	region string
}

// NewNormalizer returns a Normalizer that assumes the given ISO 3166-1
// alpha-2 region (e.g. "US") for numbers without a leading +.
func NewNormalizer(region string) *Normalizer {
	return &Normalizer{region: strings.ToUpper(region)}
}

// Normalize parses raw and returns its E.164 form. On failure it returns
// an empty string and one of the Reason constants.
func (n *Normalizer) Normalize(raw string) (e164 string, reason string) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ReasonRequired
	}

	num, err := phonenumbers.Parse(trimmed, n.region)
	if err != nil {
		return "", ReasonUnparseable
	}
	// Possible-number check (length for the region) rather than strict
	// validity: lead lists routinely carry numbers in reserved exchanges
	// that strict metadata would reject, and the dialer is the final
	// arbiter of reachability anyway.
	if !phonenumbers.IsPossibleNumber(num) {
		return "", ReasonInvalidFormat
	}
	return phonenumbers.Format(num, phonenumbers.E164), ""
}
