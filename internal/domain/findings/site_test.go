package findings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSiteLabelPriority(t *testing.T) {
	tests := []struct {
		name  string
		f     Finding
		label string
		rule  string
	}{
		{
			name: "breach name beats everything",
			f: Finding{
				Provider: "hibp",
				Evidence: []Evidence{{Key: "Domain", Value: "adobe.com"}, {Key: "Breach Name", Value: "Adobe"}},
				Meta:     map[string]any{"title": "Breach: Other", "platform": "X"},
			},
			label: "Adobe",
			rule:  "evidence.breach_name",
		},
		{
			name: "site evidence beats domain",
			f: Finding{
				Provider: "maigret",
				Evidence: []Evidence{{Key: "Domain", Value: "github.com"}, {Key: "site", Value: "GitHub"}},
			},
			label: "GitHub",
			rule:  "evidence.site",
		},
		{
			name:  "domain evidence",
			f:     Finding{Provider: "spamhaus", Evidence: []Evidence{{Key: "domain", Value: "example.org"}}},
			label: "example.org",
			rule:  "evidence.domain",
		},
		{
			name:  "empty evidence value is skipped",
			f:     Finding{Provider: "x", Evidence: []Evidence{{Key: "site", Value: "  "}}, Meta: map[string]any{"platform": "Reddit"}},
			label: "Reddit",
			rule:  "meta.platform",
		},
		{
			name:  "title with breach prefix",
			f:     Finding{Provider: "dehashed", Meta: map[string]any{"title": "Breach: LinkedIn"}},
			label: "LinkedIn",
			rule:  "meta.title",
		},
		{
			name:  "title with profile on",
			f:     Finding{Provider: "x", Meta: map[string]any{"title": "Profile on Mastodon"}},
			label: "Mastodon",
			rule:  "meta.title",
		},
		{
			name:  "title with profile suffix",
			f:     Finding{Provider: "x", Meta: map[string]any{"title": "Twitch profile"}},
			label: "Twitch",
			rule:  "meta.title",
		},
		{
			name:  "unmatched title falls through to platform",
			f:     Finding{Provider: "x", Meta: map[string]any{"title": "Breaching onboarding", "platform": "Keybase"}},
			label: "Keybase",
			rule:  "meta.platform",
		},
		{
			name:  "capitalized provider as last resort",
			f:     Finding{Provider: "whatsmyname"},
			label: "Whatsmyname",
			rule:  "provider",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label, rule := SiteLabel(tt.f)
			assert.Equal(t, tt.label, label)
			assert.Equal(t, tt.rule, rule)
		})
	}
}

func TestSiteRulesOrder(t *testing.T) {
	names := make([]string, 0, len(SiteRules))
	for _, r := range SiteRules {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{
		"evidence.breach_name",
		"evidence.site",
		"evidence.domain",
		"meta.title",
		"meta.platform",
		"provider",
	}, names)
}

func TestViewStatus(t *testing.T) {
	tests := []struct {
		name string
		f    Finding
		want string
	}{
		{"hit kind", Finding{Kind: "presence.hit"}, ViewFound},
		{"miss kind", Finding{Kind: "presence.miss"}, ViewNotFound},
		{"breach none", Finding{Kind: "breach.none"}, ViewNotFound},
		{"explicit status wins", Finding{Kind: "presence.hit", Meta: map[string]any{"display_status": "not_found"}}, ViewNotFound},
		{"exists evidence", Finding{Kind: "osint.record", Evidence: []Evidence{{Key: "exists", Value: true}}}, ViewFound},
		{"meta status", Finding{Kind: "osint.record", Meta: map[string]any{"status": "Claimed"}}, ViewFound},
		{"unknown", Finding{Kind: "osint.record"}, ViewPendingReview},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ViewStatus(tt.f))
		})
	}
}

func TestToView(t *testing.T) {
	f := Finding{
		ID:       "f1",
		Kind:     "presence.hit",
		Provider: "maigret",
		Severity: SeverityLow,
		Evidence: []Evidence{{Key: "site", Value: "GitHub"}, {Key: "url", Value: "https://github.com/alice"}},
	}
	v := ToView(f)
	assert.Equal(t, "GitHub", v.Site)
	assert.Equal(t, "https://github.com/alice", v.URL)
	assert.Equal(t, ViewFound, v.Status)
	assert.Equal(t, "maigret", v.Provider)
}
