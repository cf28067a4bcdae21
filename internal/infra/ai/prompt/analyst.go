package prompt

import (
	"encoding/json"
	"fmt"

	"github.com/bryanwahyu/footprint/internal/domain/ai"
)

// GetSystemPrompt provides strict directions and schema for JSON output.
func GetSystemPrompt() string {
	return `You are a privacy analyst reviewing the public digital footprint of a person or organisation. You must produce one valid JSON object only (no markdown, no commentary) that follows the schema below. Do not include code fences.

Requirements:
- Output must be a single JSON object.
- Use lowercase severity values: critical, high, medium, low, info.
- counts.total must equal counts.critical + counts.high + counts.medium + counts.low.
- risks is an array of objects; include at least a title, severity, and summary. Keep items concise.
- Base every risk on the findings provided. Never guess personal data that is not in the input.

Schema (example with empty values):
{
  "scan_id": "<string>",
  "exposure_level": "<critical|high|medium|low>",
  "counts": {"critical": 0, "high": 0, "medium": 0, "low": 0, "total": 0},
  "risks": [
    {
      "title": "<string>",
      "severity": "<critical|high|medium|low|info>",
      "summary": "<string>",
      "recommendation": "<string>"
    }
  ],
  "advice": "<string>"
}`
}

// GetUserPrompt wraps the scan digest in a compact user message.
func GetUserPrompt(d ai.Digest) (string, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("marshal digest: %w", err)
	}
	return fmt.Sprintf("Analyze this %s footprint scan and respond with the JSON per schema. Findings: %s", d.TargetType, b), nil
}

// Risk is one entry of Report.Risks.
type Risk struct {
	Title          string `json:"title"`
	Severity       string `json:"severity"`
	Summary        string `json:"summary"`
	Recommendation string `json:"recommendation"`
}

type Counts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Total    int `json:"total"`
}

// Report is the structure both analyzers return.
type Report struct {
	ScanID        string `json:"scan_id"`
	ExposureLevel string `json:"exposure_level"`
	Counts        Counts `json:"counts"`
	Risks         []Risk `json:"risks"`
	Advice        string `json:"advice"`
}

// ParseReport validates an analyzer response against the schema.
func ParseReport(raw string) (Report, error) {
	var r Report
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return Report{}, fmt.Errorf("analyzer returned invalid JSON: %w", err)
	}
	if r.Counts.Total != r.Counts.Critical+r.Counts.High+r.Counts.Medium+r.Counts.Low {
		return Report{}, fmt.Errorf("analyzer counts do not add up: total %d", r.Counts.Total)
	}
	return r, nil
}
