package findings

import "strings"

// Display statuses
const (
	ViewFound         = "found"
	ViewNotFound      = "not_found"
	ViewPendingReview = "pending_review"
)

// View is the provider-agnostic shape every finding is displayed in.
type View struct {
	ID       string         `json:"id"`
	Kind     string         `json:"kind"`
	Provider string         `json:"provider"`
	Severity Severity       `json:"severity"`
	Status   string         `json:"status"`
	URL      string         `json:"url,omitempty"`
	Site     string         `json:"site"`
	Meta     map[string]any `json:"meta,omitempty"`
	Evidence []Evidence     `json:"evidence,omitempty"`
}

// ToView converts a stored finding into its display shape.
func ToView(f Finding) View {
	site, _ := SiteLabel(f)
	return View{
		ID:       f.ID,
		Kind:     f.Kind,
		Provider: f.Provider,
		Severity: f.Severity,
		Status:   ViewStatus(f),
		URL:      FindingURL(f),
		Site:     site,
		Meta:     f.Meta,
		Evidence: f.Evidence,
	}
}

// ViewStatus derives found/not_found from the explicit status, then the kind,
// then the exists evidence and finally meta.status.
func ViewStatus(f Finding) string {
	if s := normalizeStatus(f.MetaString("display_status")); s != "" {
		return s
	}
	switch {
	case strings.HasSuffix(f.Kind, ".hit"):
		return ViewFound
	case strings.HasSuffix(f.Kind, ".miss"), strings.HasSuffix(f.Kind, ".none"):
		return ViewNotFound
	}
	if v, ok := f.EvidenceValue("exists"); ok {
		if s := normalizeStatus(v); s != "" {
			return s
		}
	}
	if s := normalizeStatus(f.MetaString("status")); s != "" {
		return s
	}
	return ViewPendingReview
}

func normalizeStatus(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "found", "claimed", "exists", "true", "yes", "registered", "listed":
		return ViewFound
	case "not_found", "not found", "available", "false", "no", "unclaimed":
		return ViewNotFound
	}
	return ""
}

// FindingURL prefers the url evidence, then meta.url.
func FindingURL(f Finding) string {
	if v, ok := f.EvidenceValue("url"); ok {
		return v
	}
	return f.MetaString("url")
}
