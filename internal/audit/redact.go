package audit

import (
	"regexp"
	"strings"
)

const redactedMask = "***REDACTED***"

// Redactor masks configured patterns and known secret values in audit text.
type Redactor struct {
	regexps  []*regexp.Regexp
	literals []string
}

// NewRedactor builds a Redactor from a comma or semicolon separated list of
// patterns. Fields that compile as regular expressions are used as such; the
// rest are masked literally. secrets are always masked as literals.
func NewRedactor(patterns string, secrets ...string) *Redactor {
	r := &Redactor{}
	fields := strings.FieldsFunc(patterns, func(c rune) bool { return c == ',' || c == ';' })
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if rx, err := regexp.Compile(f); err == nil {
			r.regexps = append(r.regexps, rx)
		} else {
			r.literals = append(r.literals, f)
		}
	}
	for _, s := range secrets {
		if s != "" {
			r.literals = append(r.literals, s)
		}
	}
	return r
}

// String returns s with every match masked. A nil Redactor returns s as is.
func (r *Redactor) String(s string) string {
	if r == nil || s == "" {
		return s
	}
	for _, rx := range r.regexps {
		s = rx.ReplaceAllString(s, redactedMask)
	}
	for _, lit := range r.literals {
		s = strings.ReplaceAll(s, lit, redactedMask)
	}
	return s
}

// Strings applies String to each element and returns a new slice.
func (r *Redactor) Strings(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = r.String(v)
	}
	return out
}
