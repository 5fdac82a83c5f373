package dates

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Found is a date spotted in free text together with the label that precedes it
// on the same line, e.g. "Inspection Date" for "Inspection Date: 15/07/2023".
type Found struct {
	Label string `json:"label"`
	Raw   string `json:"raw"`
	ISO   string `json:"date"`
}

const monthNames = `(?:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)`

var reDateToken = regexp.MustCompile(`(?i)\b(?:` +
	`\d{4}-\d{2}-\d{2}` +
	`|\d{1,2}[/.\-]\d{1,2}[/.\-]\d{2,4}` +
	`|\d{1,2}(?:st|nd|rd|th)?\s+(?:of\s+)?` + monthNames + `\.?,?\s+\d{4}` +
	`|` + monthNames + `\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}` +
	`)\b`)

var reLabelTrim = regexp.MustCompile(`[\s:\-–|]+$`)

// Find returns every parseable date in text, in order of appearance.
func Find(text string) []Found {
	var out []Found
	for _, line := range strings.Split(text, "\n") {
		for _, loc := range reDateToken.FindAllStringIndex(line, -1) {
			raw := line[loc[0]:loc[1]]
			iso, ok := Normalize(raw)
			if !ok {
				continue
			}
			out = append(out, Found{Label: labelBefore(line[:loc[0]]), Raw: raw, ISO: iso})
		}
	}
	return out
}

func labelBefore(prefix string) string {
	label := reLabelTrim.ReplaceAllString(prefix, "")
	label = strings.TrimSpace(label)
	// keep only the tail of long lines; labels sit right before the value
	if len(label) > 48 {
		cut := len(label) - 48
		for cut < len(label) && !utf8.RuneStart(label[cut]) {
			cut++
		}
		label = label[cut:]
		if i := strings.IndexByte(label, ' '); i >= 0 {
			label = label[i+1:]
		}
	}
	return label
}
