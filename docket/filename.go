package docket

import "regexp"

var (
	unsafeCharRe  = regexp.MustCompile(`[^\w\s-]`)
	runsOfDashRe  = regexp.MustCompile(`[-\s]+`)
	maxDescLength = 100
)

// SafeFilename builds the base filename (without collision suffix) for a
// downloaded document: "{case}-{sanitized description}.pdf". Sanitization
// strips everything outside word/space/hyphen characters, collapses runs of
// whitespace and hyphens into a single hyphen, and truncates the description
// to 100 characters.
func SafeFilename(caseNumber, description string) string {
	desc := unsafeCharRe.ReplaceAllString(description, "")
	desc = runsOfDashRe.ReplaceAllString(desc, "-")
	if len(desc) > maxDescLength {
		desc = desc[:maxDescLength]
	}
	return caseNumber + "-" + desc + ".pdf"
}
