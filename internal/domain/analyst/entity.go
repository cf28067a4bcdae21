package analyst

import "time"

// AnalysisID identifier type
type AnalysisID string

// Analysis is an exposure report generated for one scan, kept for auditing and retrieval.
type Analysis struct {
	ID          AnalysisID `json:"id"`
	WorkspaceID string     `json:"workspace_id"`
	ScanID      string     `json:"scan_id"`
	Model       string     `json:"model"`
	Result      string     `json:"result"` // JSON string from the analyzer
	CreatedAt   time.Time  `json:"created_at"`
}
