// Package rules loads the pattern-based classification rule set.
//
// A rule set is an ordered list of document types, each with detection
// patterns and per-field patterns. Once compiled a RuleSet is never mutated;
// a Store swaps whole sets atomically.
package rules

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/doc-intake/constants"
	"github.com/joseph-ayodele/doc-intake/internal/common"
)

//go:embed default.yaml
var defaultRules []byte

const (
	DefaultDetectWeight    = 3
	DefaultIssueDateWeight = 2
	DefaultFieldWeight     = 1
)

// issueDateFields get the issue-date weight; every other field the field weight.
var issueDateFields = map[string]bool{
	"issue_date":      true,
	"inspection_date": true,
}

// Weights overrides the default pattern weights for one type.
type Weights struct {
	Detect    int `yaml:"detect"`
	IssueDate int `yaml:"issue_date"`
	Field     int `yaml:"field"`
}

// TypeSpec is one document type as written in YAML.
type TypeSpec struct {
	Name    string              `yaml:"name"`
	Detect  []string            `yaml:"detect"`
	Fields  map[string][]string `yaml:"fields"`
	Weights *Weights            `yaml:"weights,omitempty"`
}

// File is the on-disk rule set document.
type File struct {
	Version string     `yaml:"version"`
	Types   []TypeSpec `yaml:"types"`
}

// Pattern is a compiled pattern with the weight it contributes per match.
type Pattern struct {
	Field  string // empty for detection patterns
	Source string
	Weight int
	Re     *regexp.Regexp
}

// DocType is a compiled document type.
type DocType struct {
	Name     string
	Patterns []Pattern
}

// SkippedPattern records a pattern that failed to compile.
type SkippedPattern struct {
	Type    string
	Field   string
	Pattern string
	Err     string
}

// RuleSet is an immutable compiled rule set.
type RuleSet struct {
	Version string
	Types   []DocType
	Skipped []SkippedPattern
}

// Default compiles the embedded rule set.
func Default(logger *slog.Logger) (*RuleSet, error) {
	return Parse(defaultRules, logger)
}

// LoadFile reads and compiles a YAML rule set from disk.
func LoadFile(path string, logger *slog.Logger) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file %s: %w", path, err)
	}
	rs, err := Parse(data, logger)
	if err != nil {
		return nil, fmt.Errorf("rules file %s: %w", path, err)
	}
	return rs, nil
}

// Parse decodes YAML and compiles it.
func Parse(data []byte, logger *slog.Logger) (*RuleSet, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, common.NewAppError("RULES_PARSE", "invalid rule set yaml", err)
	}
	return Compile(f, logger)
}

// Compile validates the document and compiles every pattern. Patterns that do
// not compile are skipped and logged; structural problems are errors.
func Compile(f File, logger *slog.Logger) (*RuleSet, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := validate(f); err != nil {
		return nil, err
	}

	rs := &RuleSet{Version: strings.TrimSpace(f.Version)}
	for _, spec := range f.Types {
		w := weightsFor(spec.Weights)
		dt := DocType{Name: strings.TrimSpace(spec.Name)}

		add := func(field, src string, weight int) {
			re, err := regexp.Compile("(?i)" + src)
			if err != nil {
				logger.Warn("rules.pattern.invalid",
					"version", rs.Version, "type", dt.Name, "field", field, "pattern", src, "err", err)
				rs.Skipped = append(rs.Skipped, SkippedPattern{Type: dt.Name, Field: field, Pattern: src, Err: err.Error()})
				return
			}
			dt.Patterns = append(dt.Patterns, Pattern{Field: field, Source: src, Weight: weight, Re: re})
		}

		for _, src := range spec.Detect {
			add("", src, w.Detect)
		}
		// map order is random; sort so Skipped and Patterns are stable
		fields := make([]string, 0, len(spec.Fields))
		for name := range spec.Fields {
			fields = append(fields, name)
		}
		sort.Strings(fields)
		for _, name := range fields {
			weight := w.Field
			if issueDateFields[name] {
				weight = w.IssueDate
			}
			for _, src := range spec.Fields[name] {
				add(name, src, weight)
			}
		}
		rs.Types = append(rs.Types, dt)
	}

	logger.Debug("rules.compiled", "version", rs.Version, "types", len(rs.Types), "skipped", len(rs.Skipped))
	return rs, nil
}

// TypeNames returns the type names in declaration order.
func (rs *RuleSet) TypeNames() []string {
	names := make([]string, len(rs.Types))
	for i, t := range rs.Types {
		names[i] = t.Name
	}
	return names
}

func weightsFor(o *Weights) Weights {
	w := Weights{Detect: DefaultDetectWeight, IssueDate: DefaultIssueDateWeight, Field: DefaultFieldWeight}
	if o == nil {
		return w
	}
	if o.Detect > 0 {
		w.Detect = o.Detect
	}
	if o.IssueDate > 0 {
		w.IssueDate = o.IssueDate
	}
	if o.Field > 0 {
		w.Field = o.Field
	}
	return w
}

func validate(f File) error {
	if strings.TrimSpace(f.Version) == "" {
		return common.NewAppError("RULES_INVALID", "rule set version is required", common.ErrValidation)
	}
	if len(f.Types) == 0 {
		return common.NewAppError("RULES_INVALID", "rule set has no types", common.ErrValidation)
	}
	seen := make(map[string]bool, len(f.Types))
	for i, t := range f.Types {
		name := strings.TrimSpace(t.Name)
		switch {
		case name == "":
			return common.NewAppError("RULES_INVALID", fmt.Sprintf("type #%d has no name", i+1), common.ErrValidation)
		case strings.EqualFold(name, constants.DocTypeUnknown):
			return common.NewAppError("RULES_INVALID", fmt.Sprintf("type name %q is reserved", name), common.ErrValidation)
		case seen[strings.ToLower(name)]:
			return common.NewAppError("RULES_INVALID", fmt.Sprintf("duplicate type %q", name), common.ErrValidation)
		}
		seen[strings.ToLower(name)] = true
	}
	return nil
}
