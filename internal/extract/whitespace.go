package extract

import (
	"regexp"
	"strings"
)

var (
	blankRuns = regexp.MustCompile(`\n{3,}`)
	spaceRuns = regexp.MustCompile(`[ \t]{2,}`)
)

// CleanWhitespace drops carriage returns, collapses runs of blank lines to a
// single blank line and runs of spaces or tabs to one space, then trims.
func CleanWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\r", "")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	text = spaceRuns.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
