package ocr

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	reCRLF       = regexp.MustCompile(`\r\n?`)
	reTabs       = regexp.MustCompile(`[\t\v]+`)
	reMultiSpace = regexp.MustCompile(`[ \x{00A0}]{2,}`)
	reMultiBlank = regexp.MustCompile(`\n{3,}`)
	reBoxNoise   = regexp.MustCompile(`(?m)^[ \t]*[_\-=]{3,}[ \t]*$`)
)

// Normalize collapses noisy whitespace while keeping line and page breaks
// (form feeds). Runs of more than two newlines become one blank line.
func Normalize(s string) string {
	if s == "" {
		return s
	}
	s = strings.ToValidUTF8(s, "")
	s = reCRLF.ReplaceAllString(s, "\n")
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = reTabs.ReplaceAllString(s, " ")
	s = reMultiSpace.ReplaceAllString(s, " ")
	s = reBoxNoise.ReplaceAllString(s, "")

	pages := strings.Split(s, "\f")
	for p, page := range pages {
		lines := strings.Split(page, "\n")
		for i := range lines {
			lines[i] = strings.TrimRight(lines[i], " ")
		}
		page = strings.Join(lines, "\n")
		page = reMultiBlank.ReplaceAllString(page, "\n\n")
		pages[p] = strings.TrimSpace(page)
	}
	return strings.TrimSpace(strings.Join(pages, "\f"))
}

// MeaningfulChars counts characters that are neither whitespace nor control.
func MeaningfulChars(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) && !unicode.IsControl(r) {
			n++
		}
	}
	return n
}
