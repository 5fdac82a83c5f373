package llm

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// RecoveryStrategy turns a raw model answer into a decoded JSON object.
type RecoveryStrategy struct {
	Name   string
	Decode func(raw string) (map[string]any, error)
}

const (
	StrategyNormalizeEscapes = "normalize-escapes"
	StrategySanitizeControl  = "sanitize-control"
	StrategyBase64           = "base64"
	StrategyFieldRegex       = "field-regex"
)

var errNoObject = errors.New("no JSON object in response")

const maxUnescapePasses = 3

// DefaultStrategies returns the recovery chain in the order it is tried.
func DefaultStrategies() []RecoveryStrategy {
	return []RecoveryStrategy{
		{Name: StrategyNormalizeEscapes, Decode: decodeNormalized},
		{Name: StrategySanitizeControl, Decode: decodeSanitizedControl},
		{Name: StrategyBase64, Decode: decodeBase64},
		{Name: StrategyFieldRegex, Decode: decodeFieldRegex},
	}
}

var (
	reFence         = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)\\s*```")
	reTrailingComma = regexp.MustCompile(`,(\s*[}\]])`)
	reBase64        = regexp.MustCompile(`^[A-Za-z0-9+/_\-]+={0,2}$`)
	reLiteralEscape = regexp.MustCompile(`\\\\|\\[nrt"]`)
)

func decodeObject(s string) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, errNoObject
	}
	return m, nil
}

// stripWrapper removes code fences and prose around the outermost object.
func stripWrapper(raw string) string {
	s := strings.TrimSpace(raw)
	if m := reFence.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	// a JSON document that was itself encoded as a JSON string
	if strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		var inner string
		if err := json.Unmarshal([]byte(s), &inner); err == nil {
			s = strings.TrimSpace(inner)
		}
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start >= 0 && end > start {
		s = s[start : end+1]
	}
	return s
}

func removeTrailingCommas(s string) string {
	return reTrailingComma.ReplaceAllString(s, "$1")
}

// repairStrings escapes raw newlines and tabs inside string literals and drops
// other control characters anywhere.
func repairStrings(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for _, r := range s {
		switch r {
		case '\u2028', '\u2029':
			r = '\n'
		case '\u00a0':
			r = ' '
		}
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			case r == '\n':
				b.WriteString(`\n`)
				continue
			case r == '\r':
				continue
			case r == '\t':
				b.WriteString(`\t`)
				continue
			case unicode.IsControl(r):
				continue
			}
			b.WriteRune(r)
			continue
		}
		if r == '"' {
			inString = true
		} else if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// unescapeLiterals turns a payload whose structure was escaped (\" and \n
// between tokens) back into JSON.
func unescapeLiterals(s string) string {
	return reLiteralEscape.ReplaceAllStringFunc(s, func(m string) string {
		switch m {
		case `\\`:
			return `\`
		case `\n`:
			return "\n"
		case `\r`:
			return "\r"
		case `\t`:
			return "\t"
		}
		return `"`
	})
}

func decodeNormalized(raw string) (map[string]any, error) {
	s := removeTrailingCommas(repairStrings(stripWrapper(raw)))
	m, err := decodeObject(s)
	if err == nil {
		return m, nil
	}
	if !strings.Contains(s, `\"`) && !strings.Contains(s, `\n`) {
		return nil, err
	}
	// doubled backslashes need one pass per escaping level
	u := s
	for i := 0; i < maxUnescapePasses; i++ {
		next := unescapeLiterals(u)
		if next == u {
			break
		}
		u = next
		if m, uerr := decodeObject(removeTrailingCommas(repairStrings(stripWrapper(u)))); uerr == nil {
			return m, nil
		}
	}
	return nil, err
}

func decodeSanitizedControl(raw string) (map[string]any, error) {
	s := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			return -1
		}
		return r
	}, raw)
	return decodeObject(removeTrailingCommas(strings.TrimSpace(s)))
}

func decodeBase64(raw string) (map[string]any, error) {
	s := strings.Trim(strings.TrimSpace(raw), "`\"'")
	s = strings.Join(strings.Fields(s), "")
	if len(s) < 8 || !reBase64.MatchString(s) {
		return nil, errors.New("not base64")
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		decoded, err := enc.DecodeString(s)
		if err != nil || !strings.Contains(string(decoded), "{") {
			continue
		}
		if m, err := decodeNormalized(string(decoded)); err == nil {
			return m, nil
		}
		if m, err := decodeSanitizedControl(string(decoded)); err == nil {
			return m, nil
		}
	}
	return nil, errors.New("base64 payload did not decode to JSON")
}

var (
	reDatePair = regexp.MustCompile(`\{\s*"label"\s*:\s*"((?:[^"\\]|\\.)*)"\s*,\s*"date"\s*:\s*"((?:[^"\\]|\\.)*)"\s*\}`)
	reMoney    = regexp.MustCompile(`\{\s*"label"\s*:\s*"((?:[^"\\]|\\.)*)"\s*,\s*"amount"\s*:\s*"?(-?[\d.,]+)"?\s*(?:,\s*"currency"\s*:\s*"([^"]*)"\s*)?\}`)
)

func fieldString(key string) *regexp.Regexp {
	return regexp.MustCompile(`"` + key + `"\s*:\s*"((?:[^"\\]|\\.)*)"`)
}

func fieldList(key string) *regexp.Regexp {
	return regexp.MustCompile(`"` + key + `"\s*:\s*\[([^\]]*)\]`)
}

var (
	stringFieldRes = func() map[string]*regexp.Regexp {
		out := make(map[string]*regexp.Regexp, len(stringFields))
		for _, k := range stringFields {
			out[k] = fieldString(k)
		}
		return out
	}()
	listFieldRes = func() map[string]*regexp.Regexp {
		out := make(map[string]*regexp.Regexp, len(listFields))
		for _, k := range listFields {
			out[k] = fieldList(k)
		}
		return out
	}()
	reConfidence = regexp.MustCompile(`"confidence"\s*:\s*"?(-?\d+(?:\.\d+)?%?)"?`)
	reQuoted     = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"`)
)

func unquote(s string) string {
	if u, err := strconv.Unquote(`"` + s + `"`); err == nil {
		return u
	}
	return s
}

// decodeFieldRegex scans for the known fields one by one. It succeeds only
// when every required field is recovered with a non-empty value.
func decodeFieldRegex(raw string) (map[string]any, error) {
	m := map[string]any{}
	for k, re := range stringFieldRes {
		if sm := re.FindStringSubmatch(raw); sm != nil {
			m[k] = unquote(sm[1])
		}
	}
	for k, re := range listFieldRes {
		sm := re.FindStringSubmatch(raw)
		if sm == nil {
			continue
		}
		items := []any{}
		for _, q := range reQuoted.FindAllStringSubmatch(sm[1], -1) {
			items = append(items, unquote(q[1]))
		}
		m[k] = items
	}
	if sm := reConfidence.FindStringSubmatch(raw); sm != nil {
		m["confidence"] = sm[1]
	}
	if pairs := reDatePair.FindAllStringSubmatch(raw, -1); len(pairs) > 0 {
		kd := make([]any, 0, len(pairs))
		for _, p := range pairs {
			kd = append(kd, map[string]any{"label": unquote(p[1]), "date": unquote(p[2])})
		}
		m["key_dates"] = kd
	}
	if amounts := reMoney.FindAllStringSubmatch(raw, -1); len(amounts) > 0 {
		mv := make([]any, 0, len(amounts))
		for _, a := range amounts {
			mv = append(mv, map[string]any{"label": unquote(a[1]), "amount": a[2], "currency": a[3]})
		}
		m["monetary_values"] = mv
	}

	for _, req := range RequiredFields {
		if s, _ := m[req].(string); strings.TrimSpace(s) == "" {
			return nil, fmt.Errorf("required field %q not recovered", req)
		}
	}
	return m, nil
}
