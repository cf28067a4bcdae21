package findings

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bryanwahyu/footprint/internal/domain/scans"
)

// KindNoHits marks a scan where no provider returned anything.
const KindNoHits = "info.no_hits"

// Fingerprint identifies a finding within a scan regardless of its id.
func Fingerprint(f Finding) string {
	key := FindingURL(f)
	if key == "" {
		b, _ := json.Marshal(f.Evidence)
		key = string(b)
	}
	return strings.ToLower(f.Provider) + "|" + f.Kind + "|" + strings.ToLower(key)
}

// Dedupe drops repeated findings, keeping the first occurrence.
func Dedupe(fs []Finding) []Finding {
	seen := make(map[string]struct{}, len(fs))
	out := make([]Finding, 0, len(fs))
	for _, f := range fs {
		fp := Fingerprint(f)
		if _, ok := seen[fp]; ok {
			continue
		}
		seen[fp] = struct{}{}
		out = append(out, f)
	}
	return out
}

// Sort orders by severity, then confidence, both descending. The sort is stable.
func Sort(fs []Finding) {
	sort.SliceStable(fs, func(i, j int) bool {
		ri, rj := fs[i].Severity.Rank(), fs[j].Severity.Rank()
		if ri != rj {
			return ri > rj
		}
		return fs[i].Confidence > fs[j].Confidence
	})
}

// Tally counts findings per severity. System findings are not counted.
func Tally(fs []Finding) scans.SeverityCounts {
	var c scans.SeverityCounts
	for _, f := range fs {
		if f.Kind == KindNoHits {
			continue
		}
		switch f.Severity {
		case SeverityHigh:
			c.High++
		case SeverityMedium:
			c.Medium++
		case SeverityLow:
			c.Low++
		default:
			c.Info++
		}
		c.Total++
	}
	return c
}

// CountByProvider returns how many findings each provider produced.
func CountByProvider(fs []Finding) map[string]int {
	out := make(map[string]int)
	for _, f := range fs {
		if f.Kind == KindNoHits {
			continue
		}
		out[f.Provider]++
	}
	return out
}

// NoHits builds the system finding recorded when a scan found nothing.
func NoHits(scanID, workspace string, providers []string, at time.Time) Finding {
	return Finding{
		ID:          uuid.NewString(),
		ScanID:      scanID,
		WorkspaceID: workspace,
		Provider:    "system",
		Kind:        KindNoHits,
		Severity:    SeverityInfo,
		Confidence:  1,
		Evidence:    []Evidence{{Key: "providers", Value: strings.Join(providers, ", ")}},
		Meta:        map[string]any{"title": "No results found", "display_status": ViewNotFound},
		ObservedAt:  at,
	}
}
