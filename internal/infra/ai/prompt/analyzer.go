package prompt

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/bryanwahyu/footprint/internal/domain/ai"
)

// HeuristicModel is the model name recorded for locally generated reports.
const HeuristicModel = "local-heuristic"

// Heuristic is an ai.Client that needs no API key. It derives the report
// from the digest with fixed rules.
type Heuristic struct{}

func (Heuristic) Model() string { return HeuristicModel }

func (Heuristic) Analyze(_ context.Context, d ai.Digest) (string, error) {
	return AnalyzeDigest(d)
}

var sensitiveSites = []string{"dating", "adult", "gambling", "onlyfans", "ashley", "tinder", "grindr"}

// AnalyzeDigest inspects a scan digest and returns a JSON string matching
// the report schema.
func AnalyzeDigest(d ai.Digest) (string, error) {
	out := Report{ScanID: d.ScanID}
	risks := make([]Risk, 0, 8)

	add := func(sev, title, summary, rec string) {
		risks = append(risks, Risk{Title: title, Severity: sev, Summary: summary, Recommendation: rec})
		switch sev {
		case "critical":
			out.Counts.Critical++
		case "high":
			out.Counts.High++
		case "medium":
			out.Counts.Medium++
		case "low":
			out.Counts.Low++
		}
	}

	var breaches, highBreaches, profiles, phone, listed []string
	for _, f := range d.Findings {
		kind := strings.ToLower(f.Kind)
		switch {
		case strings.HasPrefix(kind, "breach"):
			breaches = append(breaches, f.Site)
			if f.Severity == "high" {
				highBreaches = append(highBreaches, f.Site)
			}
		case strings.HasPrefix(kind, "presence"):
			profiles = append(profiles, f.Site)
		case strings.HasPrefix(kind, "phone"):
			phone = append(phone, f.Site)
		case kind == "reputation.listed":
			listed = append(listed, f.Site)
		}
	}

	if len(highBreaches) > 0 {
		add("critical", "Passwords exposed in data breaches",
			fmt.Sprintf("%d breach(es) exposed passwords or sensitive data: %s", len(highBreaches), list(highBreaches, 5)),
			"Change the password on every affected service and anywhere it was reused; enable two-factor authentication.")
	}
	if n := len(breaches) - len(highBreaches); n > 0 {
		add("high", "Account data in known breaches",
			fmt.Sprintf("The target appears in %d additional breach(es).", n),
			"Watch for phishing that references these services and review account recovery settings.")
	}
	switch {
	case len(profiles) >= 20:
		add("high", "Large public profile footprint",
			fmt.Sprintf("%d public profiles were found, which makes correlation across sites easy.", len(profiles)),
			"Delete unused accounts and use different usernames for unrelated contexts.")
	case len(profiles) >= 5:
		add("medium", "Reused username across platforms",
			fmt.Sprintf("Profiles found on %s.", list(profiles, 8)),
			"Review privacy settings on each platform and remove personal details from bios.")
	case len(profiles) > 0:
		add("low", "Public profiles found",
			fmt.Sprintf("Profiles found on %s.", list(profiles, 8)),
			"Check what each profile reveals publicly.")
	}
	for _, p := range profiles {
		lp := strings.ToLower(p)
		for _, s := range sensitiveSites {
			if strings.Contains(lp, s) {
				add("high", "Account on a sensitive platform",
					fmt.Sprintf("A profile on %s is linked to the target.", p),
					"Consider deleting the account or detaching it from identifying details.")
				break
			}
		}
	}
	if len(phone) > 0 {
		add("medium", "Phone number details are discoverable",
			fmt.Sprintf("Carrier or line details were resolved: %s", list(phone, 3)),
			"Be aware of SIM swap risk; add a carrier PIN and avoid SMS based recovery.")
	}
	if len(listed) > 0 {
		add("medium", "Domain listed on reputation blocklists",
			fmt.Sprintf("Listed by %s.", list(listed, 3)),
			"Investigate the listing reason and request delisting once resolved.")
	}

	if len(risks) == 0 {
		add("info", "No significant exposure found",
			"None of the providers returned findings that indicate exposure.",
			"Repeat the scan periodically; new breaches are published regularly.")
	}
	if len(risks) > 20 {
		risks = risks[:20]
	}
	out.Risks = risks
	out.Counts.Total = out.Counts.Critical + out.Counts.High + out.Counts.Medium + out.Counts.Low

	switch {
	case out.Counts.Critical > 0:
		out.ExposureLevel = "critical"
		out.Advice = "Immediate action required: rotate passwords exposed in breaches, enable two-factor authentication and close accounts you no longer use."
	case out.Counts.High > 0:
		out.ExposureLevel = "high"
		out.Advice = "Reduce the public footprint: review breached accounts and remove identifying details from public profiles."
	case out.Counts.Medium > 0:
		out.ExposureLevel = "medium"
		out.Advice = "Moderate exposure. Tighten privacy settings and monitor for new breaches."
	default:
		out.ExposureLevel = "low"
		out.Advice = "Maintain good hygiene: unique passwords, two-factor authentication and periodic rescans."
	}

	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	return string(b), nil
}

func list(items []string, max int) string {
	seen := map[string]bool{}
	var uniq []string
	for _, s := range items {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		uniq = append(uniq, s)
	}
	sort.Strings(uniq)
	if len(uniq) > max {
		return strings.Join(uniq[:max], ", ") + fmt.Sprintf(" and %d more", len(uniq)-max)
	}
	return strings.Join(uniq, ", ")
}
