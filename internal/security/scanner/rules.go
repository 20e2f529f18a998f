// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package scanner

import (
	_ "embed"
	"os"
	"regexp"
	"slices"
	"sync"

	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
	"github.com/sigil-dev/aegis/pkg/types"
	"gopkg.in/yaml.v3"
)

//go:embed rules/default.yaml
var defaultRulesYAML []byte

// Rule is one detection pattern used by LocalScanner.
type Rule struct {
	Name     string
	Category types.Category
	// Directions limits the rule to ingress or egress scans. Empty means both.
	Directions []types.Direction
	Pattern    *regexp.Regexp
	// Group selects the capture group whose bounds become the finding span.
	// Zero uses the whole match.
	Group       int
	Replacement string
}

// appliesTo reports whether the rule runs for the given direction.
func (r Rule) appliesTo(d types.Direction) bool {
	return len(r.Directions) == 0 || slices.Contains(r.Directions, d)
}

// validate checks a rule before it is installed in a scanner.
func (r Rule) validate() error {
	if r.Name == "" {
		return aegiserr.New(aegiserr.CodeScanRuleInvalid, "rule has empty name")
	}
	if r.Pattern == nil {
		return aegiserr.Errorf(aegiserr.CodeScanRuleInvalid, "rule %s has nil pattern", r.Name)
	}
	if r.Category != types.CategoryMalicious && r.Category != types.CategorySensitiveData {
		return aegiserr.Errorf(aegiserr.CodeScanRuleInvalid,
			"rule %s has category %q; only malicious and sensitive_data rules are supported", r.Name, r.Category)
	}
	for _, d := range r.Directions {
		if !d.Valid() {
			return aegiserr.Errorf(aegiserr.CodeScanRuleInvalid, "rule %s has invalid direction %q", r.Name, d)
		}
	}
	if r.Group < 0 || r.Group > r.Pattern.NumSubexp() {
		return aegiserr.Errorf(aegiserr.CodeScanRuleInvalid,
			"rule %s selects group %d but pattern has %d", r.Name, r.Group, r.Pattern.NumSubexp())
	}
	return nil
}

// ruleFile is the YAML layout of a rule set.
type ruleFile struct {
	Rules []ruleEntry `yaml:"rules"`
}

type ruleEntry struct {
	Name        string   `yaml:"name"`
	Category    string   `yaml:"category"`
	Directions  []string `yaml:"directions"`
	Pattern     string   `yaml:"pattern"`
	Group       int      `yaml:"group"`
	Replacement string   `yaml:"replacement"`
}

// ParseRules decodes a YAML rule set. Every pattern must compile; a rule set
// with a broken pattern is rejected as a whole.
func ParseRules(data []byte) ([]Rule, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, aegiserr.Errorf(aegiserr.CodeScanRuleInvalid, "parsing rule YAML: %w", err)
	}

	seen := make(map[string]bool, len(f.Rules))
	rules := make([]Rule, 0, len(f.Rules))
	for i, e := range f.Rules {
		if seen[e.Name] {
			return nil, aegiserr.Errorf(aegiserr.CodeScanRuleInvalid, "duplicate rule name %q", e.Name)
		}
		seen[e.Name] = true

		category, err := types.ParseCategory(e.Category)
		if err != nil {
			return nil, aegiserr.Errorf(aegiserr.CodeScanRuleInvalid, "rule %d (%s): invalid category %q", i, e.Name, e.Category)
		}
		re, err := regexp.Compile(e.Pattern)
		if err != nil {
			return nil, aegiserr.Errorf(aegiserr.CodeScanRuleInvalid, "rule %d (%s): compiling pattern: %v", i, e.Name, err)
		}
		dirs := make([]types.Direction, 0, len(e.Directions))
		for _, d := range e.Directions {
			dirs = append(dirs, types.Direction(d))
		}

		r := Rule{
			Name:        e.Name,
			Category:    category,
			Directions:  dirs,
			Pattern:     re,
			Group:       e.Group,
			Replacement: e.Replacement,
		}
		if err := r.validate(); err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// LoadRulesFile reads and parses a YAML rule set from disk.
func LoadRulesFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, aegiserr.Errorf(aegiserr.CodeScanRuleInvalid, "reading rules file %s: %w", path, err)
	}
	return ParseRules(data)
}

var (
	defaultRulesOnce sync.Once
	defaultRules     []Rule
	defaultRulesErr  error
)

// DefaultRules returns the built-in rule set. The embedded YAML is parsed
// once; callers receive their own slice.
func DefaultRules() ([]Rule, error) {
	rules, err := builtinRules()
	if err != nil {
		return nil, err
	}
	return slices.Clone(rules), nil
}

// builtinRules returns the shared parsed default set. Callers must not modify
// it.
func builtinRules() ([]Rule, error) {
	defaultRulesOnce.Do(func() {
		defaultRules, defaultRulesErr = ParseRules(defaultRulesYAML)
	})
	return defaultRules, defaultRulesErr
}
