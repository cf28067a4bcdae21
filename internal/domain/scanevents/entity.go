package scanevents

import "time"

// Kind of provider lifecycle event
type Kind string

const (
	KindStart   Kind = "start"
	KindSuccess Kind = "success"
	KindFailed  Kind = "failed"
	KindRetry   Kind = "retry"
	KindSkipped Kind = "skipped"
)

// ProviderEvent is an audit row written as each provider moves through a scan.
type ProviderEvent struct {
	ID          int64     `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	ScanID      string    `json:"scan_id"`
	Provider    string    `json:"provider"`
	Event       Kind      `json:"event"`
	Message     string    `json:"message,omitempty"`
	ResultCount int       `json:"result_count"`
	DurationMS  int64     `json:"duration_ms"`
	DetailsJSON string    `json:"details_json,omitempty"` // raw JSON string
	CreatedAt   time.Time `json:"created_at"`
}
