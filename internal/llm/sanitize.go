package llm

import (
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/doc-intake/constants"
	"github.com/joseph-ayodele/doc-intake/internal/dates"
)

// synonyms maps keys models commonly invent onto the result schema.
var synonyms = map[string]string{
	"title":              "document_title",
	"documenttitle":      "document_title",
	"document_name":      "document_title",
	"issuer":             "issuing_party",
	"issued_by":          "issuing_party",
	"issuingparty":       "issuing_party",
	"contractor":         "issuing_party",
	"dates":              "key_dates",
	"important_dates":    "key_dates",
	"keydates":           "key_dates",
	"amounts":            "monetary_values",
	"costs":              "monetary_values",
	"money":              "monetary_values",
	"monetaryvalues":     "monetary_values",
	"summary":            "notes",
	"comments":           "notes",
	"issues":             "blocking_issues",
	"blockers":           "blocking_issues",
	"blockingissues":     "blocking_issues",
	"actions":            "follow_up_actions",
	"recommendations":    "follow_up_actions",
	"followupactions":    "follow_up_actions",
	"next_steps":         "follow_up_actions",
	"reference":          "reference_number",
	"ref":                "reference_number",
	"certificate_number": "reference_number",
	"address":            "property_address",
	"premises":           "property_address",
	"result":             "outcome",
}

var (
	stringFields = []string{"document_title", "issuing_party", "notes", "reference_number", "outcome", "property_address"}
	listFields   = []string{"blocking_issues", "follow_up_actions"}
	knownFields  = append(append([]string{"key_dates", "monetary_values", "confidence"}, stringFields...), listFields...)

	currencySymbols = map[string]string{"£": "GBP", "$": "USD", "€": "EUR"}
	reAmountNoise   = regexp.MustCompile(`[^\d.\-]`)
	reISOCurrency   = regexp.MustCompile(`^[A-Z]{3}$`)
)

// Sanitize coerces a decoded model answer towards the result schema:
//   - renames known synonyms
//   - trims strings and coerces scalars to strings
//   - normalizes key dates to YYYY-MM-DD and drops unparseable ones
//   - parses amounts and resolves currencies (default GBP)
//   - clamps confidence into [0,1], reading percentages
//   - removes unknown keys
//
// It returns what was dropped or rewritten.
func Sanitize(m map[string]any, logger *slog.Logger) []string {
	if logger == nil {
		logger = slog.Default()
	}
	var dropped []string

	for k, v := range m {
		canon := strings.ToLower(strings.TrimSpace(k))
		to, ok := synonyms[canon]
		if !ok {
			to = canon
		}
		if to == k {
			continue
		}
		delete(m, k)
		// don't overwrite a value the model already put under the right key
		if _, exists := m[to]; !exists {
			m[to] = v
		}
		dropped = append(dropped, k+"->"+to)
	}

	for _, k := range stringFields {
		v, ok := m[k]
		if !ok {
			continue
		}
		s, ok := scalarString(v)
		if !ok {
			delete(m, k)
			dropped = append(dropped, k+"(type)")
			continue
		}
		m[k] = s
	}

	for _, k := range listFields {
		if v, ok := m[k]; ok {
			m[k] = stringList(v)
		}
	}

	if v, ok := m["key_dates"]; ok {
		kd, bad := sanitizeKeyDates(v)
		m["key_dates"] = kd
		dropped = append(dropped, bad...)
	}
	if v, ok := m["monetary_values"]; ok {
		mv, bad := sanitizeMoney(v)
		m["monetary_values"] = mv
		dropped = append(dropped, bad...)
	}
	if v, ok := m["confidence"]; ok {
		if c, ok := confidence(v); ok {
			m["confidence"] = c
		} else {
			delete(m, "confidence")
			dropped = append(dropped, "confidence(type)")
		}
	}

	for k := range m {
		if !slices.Contains(knownFields, k) {
			delete(m, k)
			dropped = append(dropped, k+"(unknown)")
		}
	}

	if len(dropped) > 0 {
		logger.Debug("llm.sanitize", "changes", dropped)
	}
	return dropped
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", true
	case string:
		return strings.TrimSpace(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", false
}

func stringList(v any) []any {
	out := []any{}
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			out = append(out, s)
		}
	case []any:
		for _, e := range t {
			if s, ok := scalarString(e); ok && s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// sanitizeKeyDates accepts a list of {label, date} objects or a
// {label: date} map.
func sanitizeKeyDates(v any) ([]any, []string) {
	var entries [][2]string
	switch t := v.(type) {
	case []any:
		for _, e := range t {
			switch obj := e.(type) {
			case map[string]any:
				label, _ := scalarString(firstOf(obj, "label", "name", "type", "description"))
				raw, _ := scalarString(firstOf(obj, "date", "value", "iso"))
				entries = append(entries, [2]string{label, raw})
			case string:
				entries = append(entries, [2]string{"", obj})
			}
		}
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			raw, _ := scalarString(t[k])
			entries = append(entries, [2]string{k, raw})
		}
	}

	out := []any{}
	var bad []string
	for i, e := range entries {
		iso, ok := dates.Normalize(e[1])
		if !ok {
			bad = append(bad, fmt.Sprintf("key_dates[%d](date)", i))
			continue
		}
		out = append(out, map[string]any{"label": e[0], "date": iso})
	}
	return out, bad
}

func sanitizeMoney(v any) ([]any, []string) {
	list, ok := v.([]any)
	if !ok {
		if obj, isObj := v.(map[string]any); isObj {
			list = []any{obj}
		}
	}
	out := []any{}
	var bad []string
	for i, e := range list {
		obj, ok := e.(map[string]any)
		if !ok {
			bad = append(bad, fmt.Sprintf("monetary_values[%d](type)", i))
			continue
		}
		label, _ := scalarString(firstOf(obj, "label", "name", "description"))
		cur, _ := scalarString(firstOf(obj, "currency", "currency_code"))
		amount, sym, ok := parseAmount(firstOf(obj, "amount", "value"))
		if !ok {
			bad = append(bad, fmt.Sprintf("monetary_values[%d](amount)", i))
			continue
		}
		out = append(out, map[string]any{
			"label":    label,
			"amount":   amount,
			"currency": currencyCode(cur, sym),
		})
	}
	return out, bad
}

func firstOf(obj map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// parseAmount reads numbers and strings such as "£1,250.00"; it also returns
// any currency symbol seen.
func parseAmount(v any) (float64, string, bool) {
	switch t := v.(type) {
	case float64:
		return t, "", true
	case string:
		var sym string
		for s := range currencySymbols {
			if strings.Contains(t, s) {
				sym = s
				break
			}
		}
		n := reAmountNoise.ReplaceAllString(t, "")
		if n == "" {
			return 0, sym, false
		}
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, sym, false
		}
		return math.Round(f*100) / 100, sym, true
	}
	return 0, "", false
}

func currencyCode(cur, sym string) string {
	c := strings.ToUpper(strings.TrimSpace(cur))
	if code, ok := currencySymbols[c]; ok {
		return code
	}
	if reISOCurrency.MatchString(c) {
		return c
	}
	if code, ok := currencySymbols[sym]; ok {
		return code
	}
	return constants.DefaultCurrency
}

func confidence(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		s := strings.TrimSpace(t)
		pct := strings.HasSuffix(s, "%")
		p, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
		if err != nil {
			return 0, false
		}
		f = p
		if pct {
			f = p / 100
		}
	default:
		return 0, false
	}
	if f > 1 && f <= 100 {
		f /= 100
	}
	return math.Max(0, math.Min(1, f)), true
}
