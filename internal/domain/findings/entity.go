package findings

import (
	"fmt"
	"strings"
	"time"
)

// Severity of a finding
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
	SeverityInfo   Severity = "info"
)

func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical", "high":
		return SeverityHigh
	case "medium", "moderate":
		return SeverityMedium
	case "low":
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// Evidence is one tagged key/value pair attached to a finding.
type Evidence struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Finding is an immutable result row written when its provider returns.
type Finding struct {
	ID          string         `json:"id"`
	ScanID      string         `json:"scan_id"`
	WorkspaceID string         `json:"workspace_id"`
	Provider    string         `json:"provider"`
	Kind        string         `json:"kind"`
	Severity    Severity       `json:"severity"`
	Confidence  float64        `json:"confidence"`
	Evidence    []Evidence     `json:"evidence"`
	Meta        map[string]any `json:"meta,omitempty"`
	ObservedAt  time.Time      `json:"observed_at"`
}

// EvidenceValue looks up an evidence entry by key, case-insensitively.
func (f Finding) EvidenceValue(key string) (string, bool) {
	for _, e := range f.Evidence {
		if strings.EqualFold(e.Key, key) {
			s := stringify(e.Value)
			if s == "" {
				return "", false
			}
			return s, true
		}
	}
	return "", false
}

// MetaString returns meta[key] as a trimmed string.
func (f Finding) MetaString(key string) string {
	if f.Meta == nil {
		return ""
	}
	return stringify(f.Meta[key])
}

// SocialProfile is a discovered account on a platform.
type SocialProfile struct {
	ID         string         `json:"id"`
	ScanID     string         `json:"scan_id"`
	Provider   string         `json:"provider"`
	Platform   string         `json:"platform"`
	Username   string         `json:"username,omitempty"`
	URL        string         `json:"url,omitempty"`
	Found      bool           `json:"found"`
	Status     string         `json:"status,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
	ObservedAt time.Time      `json:"observed_at"`
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []string:
		return strings.Join(t, ", ")
	case []any:
		parts := make([]string, 0, len(t))
		for _, x := range t {
			if s := stringify(x); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
