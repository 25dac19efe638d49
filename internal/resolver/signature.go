package resolver

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// ErrorSignature is an evaluator's compact description of what a submission
// got wrong: concept tokens plus optional structural markers such as
// "missing base case".
type ErrorSignature struct {
	Tokens  []string `json:"tokens"`
	Markers []string `json:"markers,omitempty"`
}

// ParseSignature decodes a JSON signature and rejects one with no terms.
func ParseSignature(data []byte) (ErrorSignature, error) {
	var sig ErrorSignature
	if err := json.Unmarshal(data, &sig); err != nil {
		return ErrorSignature{}, fmt.Errorf("decode error signature: %w", err)
	}
	if sig.Empty() {
		return ErrorSignature{}, fmt.Errorf("error signature has no tokens or markers")
	}
	return sig, nil
}

// Empty reports whether the signature carries no usable terms.
func (s ErrorSignature) Empty() bool {
	for _, t := range s.Tokens {
		if len(tokenize(t)) > 0 {
			return false
		}
	}
	for _, m := range s.Markers {
		if len(tokenize(m)) > 0 {
			return false
		}
	}
	return true
}

// Text joins every term into one query string.
func (s ErrorSignature) Text() string {
	parts := make([]string, 0, len(s.Tokens)+len(s.Markers))
	parts = append(parts, s.Tokens...)
	parts = append(parts, s.Markers...)
	return strings.Join(parts, " ")
}

// tokenize case-folds and NFKC-normalizes s, then splits it into runs of
// letters, digits and underscores.
func tokenize(s string) []string {
	s = cases.Fold().String(norm.NFKC.String(s))
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}
