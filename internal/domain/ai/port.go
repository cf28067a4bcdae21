package ai

import "context"

// DigestItem is one finding as the analyzer sees it.
type DigestItem struct {
	Provider string `json:"provider"`
	Kind     string `json:"kind"`
	Severity string `json:"severity"`
	Site     string `json:"site"`
	URL      string `json:"url,omitempty"`
}

// Digest summarizes a scan for exposure analysis. Target values are not included.
type Digest struct {
	ScanID       string         `json:"scan_id"`
	TargetType   string         `json:"target_type"`
	PrivacyScore int            `json:"privacy_score"`
	Counts       map[string]int `json:"counts"`
	Findings     []DigestItem   `json:"findings"`
}

// Client produces a JSON exposure report for a digest.
type Client interface {
	Analyze(ctx context.Context, d Digest) (string, error)
	Model() string
}
