package results

import (
	"net/url"
	"sort"
	"strings"
)

// Profile is one account or exposure after cross-provider merging.
type Profile struct {
	Key        string   `json:"key"`
	Platform   string   `json:"platform"`
	URL        string   `json:"url,omitempty"`
	Username   string   `json:"username,omitempty"`
	Status     string   `json:"status"`
	Confidence int      `json:"confidence"`
	Sources    []string `json:"sources"`
	Exposure   bool     `json:"exposure"`
}

type Counts struct {
	Profiles       int `json:"total_profiles"`
	Exposures      int `json:"total_exposures"`
	Public         int `json:"public_profiles"`
	HighConfidence int `json:"high_confidence"`
}

type Aggregate struct {
	Profiles          []Profile `json:"profiles"`
	Counts            Counts    `json:"counts"`
	RawCount          int       `json:"raw_count"`
	DuplicatesRemoved int       `json:"duplicates_removed"`
	Merged            int       `json:"merged"`
}

var platformAliases = map[string]string{
	"x":             "twitter",
	"x.com":         "twitter",
	"github.com":    "github",
	"linkedin.com":  "linkedin",
	"facebook.com":  "facebook",
	"instagram.com": "instagram",
	"reddit.com":    "reddit",
	"youtube.com":   "youtube",
}

var exposureWords = []string{"breach", "hibp", "leak", "pwned", "compromised", "exposure", "paste", "dehashed"}

// skipped statuses describe provider health, not the target
var healthStatuses = map[string]bool{
	"provider_error": true, "unconfigured": true, "not_configured": true, "rate_limited": true,
}

// AggregateProfiles groups items that describe the same account, keyed by
// platform and username, falling back to the URL host and path.
func AggregateProfiles(items []Item) Aggregate {
	agg := Aggregate{RawCount: len(items)}
	index := map[string]int{}
	considered := 0
	for _, it := range items {
		if healthStatuses[strings.ToLower(it.Status)] || strings.Contains(strings.ToLower(it.Kind), "provider_health") {
			continue
		}
		considered++
		key := profileKey(it)
		if i, ok := index[key]; ok {
			agg.Profiles[i] = mergeProfile(agg.Profiles[i], it)
			continue
		}
		index[key] = len(agg.Profiles)
		agg.Profiles = append(agg.Profiles, Profile{
			Key:        key,
			Platform:   platformName(it.Site),
			URL:        it.URL,
			Username:   username(it),
			Status:     it.Status,
			Confidence: confidence(it),
			Sources:    []string{it.Provider},
			Exposure:   isExposure(it),
		})
	}
	sort.SliceStable(agg.Profiles, func(i, j int) bool {
		return agg.Profiles[i].Confidence > agg.Profiles[j].Confidence
	})

	for _, p := range agg.Profiles {
		switch {
		case p.Exposure:
			agg.Counts.Exposures++
		case p.Status == "found":
			agg.Counts.Public++
		}
		if p.Confidence >= 75 {
			agg.Counts.HighConfidence++
		}
		if len(p.Sources) > 1 {
			agg.Merged++
		}
	}
	agg.Counts.Profiles = len(agg.Profiles)
	agg.DuplicatesRemoved = considered - len(agg.Profiles)
	return agg
}

func mergeProfile(p Profile, it Item) Profile {
	if c := confidence(it); c > p.Confidence {
		p.Confidence = c
	}
	if p.Username == "" {
		p.Username = username(it)
	}
	if p.URL == "" {
		p.URL = it.URL
	}
	found := false
	for _, s := range p.Sources {
		if s == it.Provider {
			found = true
			break
		}
	}
	if !found {
		p.Sources = append(p.Sources, it.Provider)
	}
	p.Exposure = p.Exposure || isExposure(it)
	return p
}

func profileKey(it Item) string {
	platform := platformName(it.Site)
	if u := username(it); u != "" {
		return platform + "_" + strings.ToLower(u)
	}
	if it.URL != "" {
		if parsed, err := url.Parse(it.URL); err == nil && parsed.Host != "" {
			return strings.TrimRight(strings.ToLower(parsed.Host+parsed.Path), "/")
		}
	}
	return platform + "_" + it.ID
}

func platformName(site string) string {
	s := strings.ToLower(strings.TrimSpace(site))
	if s == "" {
		return "unknown"
	}
	if alias, ok := platformAliases[s]; ok {
		return alias
	}
	return s
}

// username prefers explicit fields, then the first plausible URL path segment.
func username(it Item) string {
	if it.Username != "" {
		return strings.TrimPrefix(it.Username, "@")
	}
	for _, k := range []string{"username", "handle", "screen_name", "login", "user"} {
		if s, ok := it.Meta[k].(string); ok && len(s) > 1 {
			return strings.TrimPrefix(s, "@")
		}
	}
	if it.URL == "" {
		return ""
	}
	parsed, err := url.Parse(it.URL)
	if err != nil {
		return ""
	}
	for _, part := range strings.Split(parsed.Path, "/") {
		if len(part) >= 2 && len(part) <= 30 && !allDigits(part) {
			return part
		}
	}
	return ""
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func confidence(it Item) int {
	score := 50
	switch strings.ToLower(it.Status) {
	case "found":
		score += 30
	case "claimed":
		score += 20
	}
	if it.URL != "" {
		score += 10
	}
	if len(it.Meta) > 2 {
		score += 10
	}
	if score > 100 {
		score = 100
	}
	return score
}

func isExposure(it Item) bool {
	if it.Category == CategoryBreach {
		return true
	}
	hay := strings.ToLower(it.Kind + " " + it.Provider + " " + it.Site)
	for _, w := range exposureWords {
		if strings.Contains(hay, w) {
			return true
		}
	}
	return false
}
