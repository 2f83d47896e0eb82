package pipeline

// validate.go buckets each extracted row into a Lead or an InvalidRow.
//
// Duplicate detection runs against a validator-scoped seen-set covering
// the whole run, so first occurrence wins regardless of how rows are
// chunked. Rows must therefore be fed in input order. A phone problem
// invalidates the row; an email problem only drops the email.

import (
	"regexp"
	"strings"

	"github.com/mhollis/leadpipe/internal/phone"
)

// Row-level error messages. These surface verbatim in the error report.
const (
	errDuplicatePhone = "Duplicate phone number"
	errInvalidEmail   = "Invalid email format"
	errInvalidPhone   = "Invalid phone: " // + normalization reason
)

// emailPattern is a deliberately loose local@domain.tld shape. The
// campaign API does its own strict checking; this only catches obvious
// garbage.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Validator validates rows one at a time, owning the run-scoped
// duplicate set. Not safe for concurrent use; a run feeds it from a
// single goroutine in row order.
type Validator struct {
	phones     *phone.Normalizer
	seen       map[string]struct{}
	duplicates int
}

// NewValidator builds a Validator with an empty seen-set.
func NewValidator(phones *phone.Normalizer) *Validator {
	return &Validator{
		phones: phones,
		seen:   make(map[string]struct{}),
	}
}

// ValidateRow classifies one row. It returns (lead, nil) for a valid
// row or (zero, invalid) for a rejected one. All applicable errors are
// collected before rejecting; an email-format problem alone never
// rejects the row, it only clears the email.
func (v *Validator) ValidateRow(row ExtractedRow) (Lead, *InvalidRow) {
	var errs []string
	fatal := false

	canonical, reason := v.phones.Normalize(row.Phone)
	if reason != "" {
		errs = append(errs, errInvalidPhone+reason)
		fatal = true
	} else if _, dup := v.seen[canonical]; dup {
		errs = append(errs, errDuplicatePhone)
		v.duplicates++
		fatal = true
	}

	email := strings.TrimSpace(row.Email)
	if email != "" && !emailPattern.MatchString(email) {
		errs = append(errs, errInvalidEmail)
		email = ""
	}

	if fatal {
		return Lead{}, &InvalidRow{
			Index:  row.Index,
			Raw:    row.Raw,
			Errors: errs,
		}
	}

	v.seen[canonical] = struct{}{}
	return Lead{
		Phone: canonical,
		Name:  cleanName(row.Name),
		Email: email,
	}, nil
}

// Duplicates returns how many rows were rejected as duplicates so far.
func (v *Validator) Duplicates() int {
	return v.duplicates
}

// nameStrip removes characters that could smuggle markup or break
// quoting in downstream consumers.
var nameStrip = strings.NewReplacer(
	"<", "",
	">", "",
	`"`, "",
	"'", "",
	"`", "",
)

// cleanName trims, collapses internal whitespace and strips angle
// brackets and quotes.
func cleanName(name string) string {
	name = nameStrip.Replace(name)
	return strings.Join(strings.Fields(name), " ")
}
