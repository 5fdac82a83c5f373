// Package classify guesses a document's type from its text using the active
// rule set.
package classify

import (
	"sort"
	"strings"

	"github.com/joseph-ayodele/doc-intake/constants"
	"github.com/joseph-ayodele/doc-intake/internal/rules"
)

// MinConfidence is the floor applied to any positive-score classification.
const MinConfidence = 0.1

// Page is one page of extracted text.
type Page struct {
	Number int
	Text   string
}

// Result is the outcome of a classification.
type Result struct {
	Type           string         `json:"type"`
	Confidence     float64        `json:"confidence"`
	RuleSetVersion string         `json:"rule_set_version"`
	Scores         map[string]int `json:"scores,omitempty"`
}

// Classifier classifies against whatever rule set the store holds at call time.
type Classifier struct {
	rules *rules.Store
}

func New(store *rules.Store) *Classifier {
	return &Classifier{rules: store}
}

// Classify is safe for concurrent use; the rule set is read once per call.
func (c *Classifier) Classify(pages []Page) Result {
	return Classify(c.rules.Current(), pages)
}

// Classify scores every type in rs against the concatenated page text.
// Pages are joined in page-number order. The highest score wins, ties keep
// the type declared first, and no positive score yields Unknown.
func Classify(rs *rules.RuleSet, pages []Page) Result {
	res := Result{Type: constants.DocTypeUnknown}
	if rs == nil {
		return res
	}
	res.RuleSetVersion = rs.Version
	text := joinPages(pages)
	if strings.TrimSpace(text) == "" {
		return res
	}

	res.Scores = make(map[string]int, len(rs.Types))
	best, runnerUp := 0, 0
	for _, dt := range rs.Types {
		score := scoreType(dt, text)
		res.Scores[dt.Name] = score
		switch {
		case score > best:
			runnerUp = best
			best = score
			res.Type = dt.Name
		case score > runnerUp:
			runnerUp = score
		}
	}
	if best == 0 {
		res.Type = constants.DocTypeUnknown
		return res
	}
	res.Confidence = confidence(best, runnerUp)
	return res
}

// Text joins pages the way Classify sees them.
func Text(pages []Page) string {
	return joinPages(pages)
}

func scoreType(dt rules.DocType, text string) int {
	score := 0
	for _, p := range dt.Patterns {
		if n := len(p.Re.FindAllStringIndex(text, -1)); n > 0 {
			score += n * p.Weight
		}
	}
	return score
}

func confidence(best, runnerUp int) float64 {
	c := float64(best) / float64(best+runnerUp+1)
	if c < MinConfidence {
		c = MinConfidence
	}
	if c > 1 {
		c = 1
	}
	return c
}

func joinPages(pages []Page) string {
	if len(pages) == 0 {
		return ""
	}
	sorted := make([]Page, len(pages))
	copy(sorted, pages)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })

	var b strings.Builder
	for i, p := range sorted {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

// PagesFromText splits form-feed separated text into numbered pages.
func PagesFromText(text string) []Page {
	parts := strings.Split(text, "\f")
	pages := make([]Page, 0, len(parts))
	for i, p := range parts {
		pages = append(pages, Page{Number: i + 1, Text: p})
	}
	return pages
}
