package findings

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// SiteRule resolves a display label for a finding. Rules are tried in order.
type SiteRule struct {
	Name    string
	Resolve func(Finding) (string, bool)
}

var (
	titlePrefix = regexp.MustCompile(`(?i)^\s*(?:breach|account|profile)(?:\s*:|\s+on\s)\s*(.+?)\s*$`)
	titleSuffix = regexp.MustCompile(`(?i)^\s*(.+?)\s+(?:profile|account)\s*$`)
)

// SiteRules is the label priority table, highest priority first.
var SiteRules = []SiteRule{
	{Name: "evidence.breach_name", Resolve: evidenceRule("Breach Name")},
	{Name: "evidence.site", Resolve: evidenceRule("site")},
	{Name: "evidence.domain", Resolve: evidenceRule("Domain")},
	{Name: "meta.title", Resolve: titleRule},
	{Name: "meta.platform", Resolve: metaRule("platform")},
	{Name: "provider", Resolve: providerRule},
}

// SiteLabel returns the label and the name of the rule that produced it.
func SiteLabel(f Finding) (label, rule string) {
	for _, r := range SiteRules {
		if v, ok := r.Resolve(f); ok {
			return v, r.Name
		}
	}
	return "", ""
}

func evidenceRule(key string) func(Finding) (string, bool) {
	return func(f Finding) (string, bool) { return f.EvidenceValue(key) }
}

func metaRule(key string) func(Finding) (string, bool) {
	return func(f Finding) (string, bool) {
		v := f.MetaString(key)
		return v, v != ""
	}
}

func titleRule(f Finding) (string, bool) {
	title := f.MetaString("title")
	if title == "" {
		return "", false
	}
	if m := titlePrefix.FindStringSubmatch(title); m != nil && m[1] != "" {
		return m[1], true
	}
	if m := titleSuffix.FindStringSubmatch(title); m != nil && m[1] != "" {
		return m[1], true
	}
	return "", false
}

func providerRule(f Finding) (string, bool) {
	p := strings.TrimSpace(f.Provider)
	if p == "" {
		return "Unknown", true
	}
	r, size := utf8.DecodeRuneInString(p)
	return string(unicode.ToUpper(r)) + p[size:], true
}
