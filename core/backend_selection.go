package core

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ebogdum/lfsauth/config"
)

// NamespaceRule matches project names against one configured namespace pattern.
//
// Patterns take one of four forms:
//
//	?/*  or  prefix/?/*   exactly one path segment after prefix, then anything
//	prefix/*             any project starting with prefix/
//	^regex               regex must match the whole project name
//	name                 exact project name
type NamespaceRule struct {
	Section config.NamespaceConfig
	match   func(project string) bool
}

// ParseNamespaceRule compiles the pattern of a namespace section
func ParseNamespaceRule(section config.NamespaceConfig) (NamespaceRule, error) {
	pattern := strings.TrimSpace(section.Pattern)
	if pattern == "" {
		return NamespaceRule{}, fmt.Errorf("empty namespace pattern")
	}

	rule := NamespaceRule{Section: section}
	switch {
	case pattern == "?/*" || strings.HasSuffix(pattern, "/?/*"):
		prefix := strings.TrimSuffix(pattern, "?/*")
		re, err := regexp.Compile("^" + regexp.QuoteMeta(prefix) + "([^/]+)/.*$")
		if err != nil {
			return NamespaceRule{}, fmt.Errorf("invalid namespace pattern %q: %w", pattern, err)
		}
		rule.match = re.MatchString

	case strings.HasSuffix(pattern, "/*"):
		prefix := strings.TrimSuffix(pattern, "*")
		rule.match = func(project string) bool {
			return strings.HasPrefix(project, prefix)
		}

	case strings.HasPrefix(pattern, "^"):
		re, err := regexp.Compile("^(?:" + strings.TrimPrefix(pattern, "^") + ")$")
		if err != nil {
			return NamespaceRule{}, fmt.Errorf("invalid namespace pattern %q: %w", pattern, err)
		}
		rule.match = re.MatchString

	default:
		rule.match = func(project string) bool {
			return project == pattern
		}
	}
	return rule, nil
}

// Matches reports whether project falls under this namespace
func (r NamespaceRule) Matches(project string) bool {
	return r.match(project)
}

// ParseNamespaceRules compiles sections in order, reporting the first bad pattern
func ParseNamespaceRules(sections []config.NamespaceConfig) ([]NamespaceRule, error) {
	rules := make([]NamespaceRule, 0, len(sections))
	for i, section := range sections {
		rule, err := ParseNamespaceRule(section)
		if err != nil {
			return nil, fmt.Errorf("lfs.namespaces[%d]: %w", i, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// MatchNamespace returns the first rule, in declared order, matching project
func MatchNamespace(rules []NamespaceRule, project string) (config.NamespaceConfig, bool) {
	for _, rule := range rules {
		if rule.Matches(project) {
			return rule.Section, true
		}
	}
	return config.NamespaceConfig{}, false
}
