package results

import (
	"strings"

	"github.com/bryanwahyu/footprint/internal/domain/findings"
)

type Category string

const (
	CategoryBreach     Category = "breach"
	CategorySocial     Category = "social"
	CategoryPhone      Category = "phone"
	CategoryReputation Category = "reputation"
	CategoryOther      Category = "other"
)

const (
	SourceFinding = "finding"
	SourceProfile = "profile"
)

// Item is one row of the merged results list.
type Item struct {
	ID         string              `json:"id"`
	Source     string              `json:"source"`
	Kind       string              `json:"kind"`
	Category   Category            `json:"category"`
	Provider   string              `json:"provider"`
	Site       string              `json:"site"`
	URL        string              `json:"url,omitempty"`
	Username   string              `json:"username,omitempty"`
	Status     string              `json:"status"`
	Severity   findings.Severity   `json:"severity"`
	Confidence float64             `json:"confidence"`
	Meta       map[string]any      `json:"meta,omitempty"`
	Evidence   []findings.Evidence `json:"evidence,omitempty"`
}

// CategoryOf infers the display category from a finding kind prefix.
func CategoryOf(kind string) Category {
	k := strings.ToLower(kind)
	switch {
	case hasAnyPrefix(k, "breach", "paste", "leak"):
		return CategoryBreach
	case hasAnyPrefix(k, "presence", "profile", "account"):
		return CategorySocial
	case hasAnyPrefix(k, "phone", "carrier"):
		return CategoryPhone
	case hasAnyPrefix(k, "reputation"):
		return CategoryReputation
	}
	return CategoryOther
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// Merge combines findings and social profiles into one list.
// Entries are deduplicated by URL and the first occurrence wins, findings
// before profiles. Entries without a URL are keyed by id so merging the
// same rows twice still yields one entry each.
func Merge(fs []findings.Finding, ps []findings.SocialProfile) []Item {
	seen := make(map[string]struct{}, len(fs)+len(ps))
	out := make([]Item, 0, len(fs)+len(ps))
	add := func(it Item) {
		key := dedupeKey(it)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, it)
	}
	for _, f := range fs {
		if f.Kind == findings.KindNoHits {
			continue
		}
		add(fromFinding(f))
	}
	for _, p := range ps {
		if !p.Found {
			continue
		}
		add(fromProfile(p))
	}
	return out
}

// dedupeKey prefers the URL. Accounts without one fall back to
// provider, site and username so a presence finding and the profile
// derived from the same item collapse into one row.
func dedupeKey(it Item) string {
	if u := NormalizeURL(it.URL); u != "" {
		return "url:" + u
	}
	if it.Category == CategorySocial && it.Site != "" {
		return "acct:" + strings.ToLower(it.Provider+"|"+it.Site+"|"+it.Username)
	}
	return "id:" + it.ID
}

// NormalizeURL lowercases and strips the scheme and trailing slash.
func NormalizeURL(raw string) string {
	u := strings.ToLower(strings.TrimSpace(raw))
	u = strings.TrimPrefix(u, "https://")
	u = strings.TrimPrefix(u, "http://")
	u = strings.TrimPrefix(u, "www.")
	return strings.TrimRight(u, "/")
}

func fromFinding(f findings.Finding) Item {
	v := findings.ToView(f)
	return Item{
		ID:         f.ID,
		Source:     SourceFinding,
		Kind:       f.Kind,
		Category:   CategoryOf(f.Kind),
		Provider:   f.Provider,
		Site:       v.Site,
		URL:        v.URL,
		Username:   f.MetaString("username"),
		Status:     v.Status,
		Severity:   f.Severity,
		Confidence: f.Confidence,
		Meta:       f.Meta,
		Evidence:   f.Evidence,
	}
}

func fromProfile(p findings.SocialProfile) Item {
	status := p.Status
	if status == "" {
		status = findings.ViewFound
	}
	site := p.Platform
	if site == "" {
		site = p.Provider
	}
	return Item{
		ID:         p.ID,
		Source:     SourceProfile,
		Kind:       "profile.found",
		Category:   CategorySocial,
		Provider:   p.Provider,
		Site:       site,
		URL:        p.URL,
		Username:   p.Username,
		Status:     status,
		Severity:   findings.SeverityLow,
		Confidence: 0.6,
		Meta:       p.Meta,
	}
}
