package docket

import (
	"regexp"
	"strings"
)

// caseNumberRe matches a case number as it appears in portal cells,
// e.g. "F-25-024957".
var caseNumberRe = regexp.MustCompile(`([A-Z]-\d{2}-\d+)`)

// FindCaseNumber extracts the first case-number-shaped token from free text.
// Returns "" when the text contains none.
func FindCaseNumber(text string) string {
	return caseNumberRe.FindString(strings.ToUpper(text))
}

// NormalizeCaseNumber converts a case number with or without dashes to the
// canonical dashed form: "F25024652" and "F-25-024652" both become
// "F-25-024652". The second return is false when the input does not have the
// expected letter + 8 digits shape; the input is then returned uppercased
// and unchanged so the caller can log it as unrecognized.
func NormalizeCaseNumber(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}

	clean := strings.ToUpper(strings.NewReplacer("-", "", " ", "").Replace(raw))

	if len(clean) == 9 && clean[0] >= 'A' && clean[0] <= 'Z' && allDigits(clean[1:]) {
		return clean[:1] + "-" + clean[1:3] + "-" + clean[3:], true
	}
	return strings.ToUpper(raw), false
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
