package findings

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bryanwahyu/footprint/internal/domain/scans"
)

// Source identifies where a batch of raw provider items came from.
type Source struct {
	Provider    string
	ScanID      string
	WorkspaceID string
	TargetType  scans.TargetType
	Target      string
	ObservedAt  time.Time
}

// Normalized is the output of Normalize for one provider response.
type Normalized struct {
	Findings []Finding
	Profiles []SocialProfile
}

var (
	breachProviders = map[string]bool{"hibp": true, "dehashed": true, "leakcheck": true}
	enumerators     = map[string]bool{"maigret": true, "sherlock": true, "whatsmyname": true, "gosearch": true}
	phoneProviders  = map[string]bool{"phone-intel": true, "numverify": true, "ipqs": true}
)

// Normalize maps the heterogeneous items of one provider into findings and
// social profiles. Items reporting an absent account are dropped.
func Normalize(src Source, items []map[string]any) Normalized {
	if src.ObservedAt.IsZero() {
		src.ObservedAt = time.Now().UTC()
	}
	provider := strings.ToLower(src.Provider)
	var out Normalized
	for _, item := range items {
		if len(item) == 0 {
			continue
		}
		if kind := firstString(item, "kind"); kind != "" {
			out.Findings = append(out.Findings, passthrough(src, kind, item))
			continue
		}
		switch {
		case breachProviders[provider]:
			out.Findings = append(out.Findings, breach(src, item))
		case enumerators[provider]:
			if f, p, ok := presence(src, item); ok {
				out.Findings = append(out.Findings, f)
				out.Profiles = append(out.Profiles, p)
			}
		case provider == "holehe":
			if f, p, ok := registration(src, item); ok {
				out.Findings = append(out.Findings, f)
				out.Profiles = append(out.Profiles, p)
			}
		case provider == "spamhaus":
			out.Findings = append(out.Findings, reputation(src, item))
		case phoneProviders[provider]:
			out.Findings = append(out.Findings, phone(src, item))
		default:
			out.Findings = append(out.Findings, generic(src, item))
		}
	}
	return out
}

func newFinding(src Source, kind string, sev Severity, conf float64) Finding {
	return Finding{
		ID:          uuid.NewString(),
		ScanID:      src.ScanID,
		WorkspaceID: src.WorkspaceID,
		Provider:    strings.ToLower(src.Provider),
		Kind:        kind,
		Severity:    sev,
		Confidence:  conf,
		Meta:        map[string]any{},
		ObservedAt:  src.ObservedAt,
	}
}

// breach handles HIBP style breach objects and DeHashed style entries.
func breach(src Source, item map[string]any) Finding {
	name := firstString(item, "Name", "Title", "name", "database_name", "breach")
	if name == "" {
		name = "Unknown breach"
	}
	dataTypes := stringList(firstValue(item, "DataClasses", "data_classes", "data_types"))
	sensitive, _ := boolOf(firstValue(item, "IsSensitive", "is_sensitive"))
	verified, _ := boolOf(firstValue(item, "IsVerified", "is_verified"))

	passwords := firstString(item, "password", "hashed_password") != ""
	for _, dt := range dataTypes {
		if strings.Contains(strings.ToLower(dt), "password") {
			passwords = true
		}
	}
	sev := SeverityMedium
	if sensitive || passwords {
		sev = SeverityHigh
	}

	f := newFinding(src, "breach.hit", sev, 0.95)
	f.Evidence = appendIf(f.Evidence, "Breach Name", name)
	f.Evidence = appendIf(f.Evidence, "Breach Date", firstString(item, "BreachDate", "breach_date", "date"))
	f.Evidence = appendIf(f.Evidence, "Domain", firstString(item, "Domain", "domain"))
	f.Evidence = appendIf(f.Evidence, "Records Affected", firstString(item, "PwnCount", "pwn_count", "records"))
	if len(dataTypes) > 0 {
		f.Evidence = append(f.Evidence, Evidence{Key: "Data Types", Value: strings.Join(dataTypes, ", ")})
	}
	f.Evidence = append(f.Evidence,
		Evidence{Key: "Is Sensitive", Value: sensitive},
		Evidence{Key: "Is Verified", Value: verified},
	)
	f.Meta["title"] = "Breach: " + name
	if strings.EqualFold(src.Provider, "hibp") {
		f.Meta["url"] = "https://haveibeenpwned.com/PwnedWebsites#" + strings.ReplaceAll(name, " ", "")
	}
	return f
}

// presence handles username enumerators (maigret, sherlock, whatsmyname, gosearch).
func presence(src Source, item map[string]any) (Finding, SocialProfile, bool) {
	site := firstString(item, "site", "sitename", "site_name", "name", "platform")
	url := firstString(item, "url", "url_user", "link", "profile_url")
	status := strings.ToLower(firstString(item, "status", "state"))

	found := normalizeStatus(status) == ViewFound
	if b, ok := boolOf(firstValue(item, "exists", "found")); ok {
		found = b
	}
	if !found {
		return Finding{}, SocialProfile{}, false
	}
	if status == "" {
		status = ViewFound
	}
	username := firstString(item, "username", "user")
	if username == "" && src.TargetType == scans.TargetUsername {
		username = src.Target
	}

	conf := 0.6
	if url != "" {
		conf = 0.8
	}
	f := newFinding(src, "presence.hit", SeverityLow, conf)
	f.Evidence = appendIf(f.Evidence, "site", site)
	f.Evidence = appendIf(f.Evidence, "url", url)
	f.Evidence = append(f.Evidence, Evidence{Key: "exists", Value: true})
	f.Meta["platform"] = site
	f.Meta["username"] = username
	f.Meta["status"] = status
	if url != "" {
		f.Meta["url"] = url
	}
	if tags := stringList(item["tags"]); len(tags) > 0 {
		f.Meta["tags"] = tags
	}

	p := SocialProfile{
		ID:         uuid.NewString(),
		ScanID:     src.ScanID,
		Provider:   f.Provider,
		Platform:   site,
		Username:   username,
		URL:        url,
		Found:      true,
		Status:     status,
		Meta:       map[string]any{"source": f.Provider},
		ObservedAt: src.ObservedAt,
	}
	return f, p, true
}

// registration handles holehe style "email is registered on site" items.
func registration(src Source, item map[string]any) (Finding, SocialProfile, bool) {
	exists, _ := boolOf(firstValue(item, "exists", "registered"))
	if !exists {
		return Finding{}, SocialProfile{}, false
	}
	site := firstString(item, "domain", "name", "site")
	url := siteURL(site)
	f := newFinding(src, "presence.hit", SeverityLow, 0.7)
	f.Evidence = appendIf(f.Evidence, "site", site)
	f.Evidence = appendIf(f.Evidence, "url", url)
	f.Evidence = append(f.Evidence, Evidence{Key: "exists", Value: true})
	f.Evidence = appendIf(f.Evidence, "Email Recovery", firstString(item, "emailrecovery", "email_recovery"))
	f.Evidence = appendIf(f.Evidence, "Phone Number", firstString(item, "phoneNumber", "phone_number"))
	f.Meta["platform"] = site
	f.Meta["title"] = "Account on " + site
	if url != "" {
		f.Meta["url"] = url
	}

	p := SocialProfile{
		ID:         uuid.NewString(),
		ScanID:     src.ScanID,
		Provider:   f.Provider,
		Platform:   site,
		URL:        url,
		Found:      true,
		Status:     ViewFound,
		Meta:       map[string]any{"source": f.Provider, "email": src.Target},
		ObservedAt: src.ObservedAt,
	}
	return f, p, true
}

// siteURL turns a bare domain like "twitter.com" into its home page.
// Plain names stay empty, there is nothing to link to.
func siteURL(site string) string {
	site = strings.TrimSpace(site)
	if strings.Contains(site, "://") {
		return site
	}
	if !strings.Contains(site, ".") || strings.ContainsAny(site, " /") {
		return ""
	}
	return "https://" + strings.ToLower(site)
}

func reputation(src Source, item map[string]any) Finding {
	lists := stringList(firstValue(item, "lists", "listings", "zones"))
	listed, known := boolOf(firstValue(item, "listed", "is_listed"))
	if !known {
		listed = len(lists) > 0
	}
	domain := firstString(item, "domain", "query")
	if domain == "" {
		domain = src.Target
		if i := strings.LastIndex(domain, "@"); i >= 0 {
			domain = domain[i+1:]
		}
	}
	f := newFinding(src, "reputation.clean", SeverityInfo, 0.9)
	if listed {
		f = newFinding(src, "reputation.listed", SeverityMedium, 0.9)
		f.Meta["display_status"] = "listed"
	}
	f.Evidence = appendIf(f.Evidence, "Domain", domain)
	f.Evidence = append(f.Evidence, Evidence{Key: "Listed", Value: listed})
	if len(lists) > 0 {
		f.Evidence = append(f.Evidence, Evidence{Key: "Lists", Value: strings.Join(lists, ", ")})
	}
	f.Meta["title"] = "Reputation: " + domain
	return f
}

func phone(src Source, item map[string]any) Finding {
	f := newFinding(src, "phone.lookup", SeverityInfo, 0.85)
	labels := []struct{ key, label string }{
		{"carrier", "Carrier"},
		{"line_type", "Line Type"},
		{"country", "Country"},
		{"location", "Location"},
		{"valid", "Valid"},
	}
	for _, l := range labels {
		if v, ok := item[l.key]; ok {
			f.Evidence = append(f.Evidence, Evidence{Key: l.label, Value: v})
		}
	}
	if carrier := firstString(item, "carrier"); carrier != "" {
		f.Kind = "phone.carrier"
		f.Meta["platform"] = carrier
	}
	if voip, _ := boolOf(item["voip"]); voip {
		f.Severity = SeverityLow
		f.Evidence = append(f.Evidence, Evidence{Key: "VoIP", Value: true})
	}
	return f
}

func generic(src Source, item map[string]any) Finding {
	f := newFinding(src, "osint.record", ParseSeverity(firstString(item, "severity", "risk", "risk_level")), 0.5)
	f.Evidence = scalarEvidence(item)
	if url := firstString(item, "url", "link"); url != "" {
		f.Meta["url"] = url
	}
	if title := firstString(item, "title", "module", "type"); title != "" {
		f.Meta["title"] = title
	}
	return f
}

// passthrough keeps items the worker already emitted in finding shape.
func passthrough(src Source, kind string, item map[string]any) Finding {
	conf := 0.5
	if c, ok := item["confidence"].(float64); ok {
		conf = c
	}
	f := newFinding(src, kind, ParseSeverity(firstString(item, "severity")), conf)
	switch ev := item["evidence"].(type) {
	case []any:
		for _, raw := range ev {
			if m, ok := raw.(map[string]any); ok {
				if k := firstString(m, "key"); k != "" {
					f.Evidence = append(f.Evidence, Evidence{Key: k, Value: m["value"]})
				}
			}
		}
	case map[string]any:
		f.Evidence = scalarEvidence(ev)
	}
	if meta, ok := item["meta"].(map[string]any); ok {
		for k, v := range meta {
			f.Meta[k] = v
		}
	}
	return f
}

func scalarEvidence(item map[string]any) []Evidence {
	keys := make([]string, 0, len(item))
	for k, v := range item {
		switch v.(type) {
		case string, float64, bool, int, int64:
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := make([]Evidence, 0, len(keys))
	for _, k := range keys {
		out = append(out, Evidence{Key: k, Value: item[k]})
	}
	return out
}

func appendIf(ev []Evidence, key, value string) []Evidence {
	if strings.TrimSpace(value) == "" {
		return ev
	}
	return append(ev, Evidence{Key: key, Value: value})
}

func firstValue(item map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := item[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func firstString(item map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringify(item[k]); s != "" {
			return s
		}
	}
	return ""
}

func boolOf(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "1", "found", "claimed":
			return true, true
		case "false", "no", "0", "not_found", "available":
			return false, true
		}
	case float64:
		return t != 0, true
	}
	return false, false
}

func stringList(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, x := range t {
			if s := stringify(x); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if t == "" {
			return nil
		}
		parts := strings.Split(t, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	case nil:
		return nil
	default:
		return []string{fmt.Sprint(t)}
	}
}
