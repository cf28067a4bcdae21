package scans

import (
	"slices"
	"strings"
	"time"
)

// ID tipe untuk Scan
type ScanID string

// TargetType enum
type TargetType string

const (
	TargetUsername TargetType = "username"
	TargetEmail    TargetType = "email"
	TargetPhone    TargetType = "phone"
	TargetDomain   TargetType = "domain"
)

// ParseTargetType normalizes s and reports whether it names a known target type.
func ParseTargetType(s string) (TargetType, bool) {
	t := TargetType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case TargetUsername, TargetEmail, TargetPhone, TargetDomain:
		return t, true
	}
	return "", false
}

// Status enum. This is the only place scan lifecycle states are declared.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusFinished  Status = "finished"
	StatusError     Status = "error"
	StatusTimeout   Status = "timeout"
	StatusCancelled Status = "cancelled"
)

var (
	terminalStatuses = []Status{StatusFinished, StatusError, StatusTimeout, StatusCancelled}
	failedStatuses   = []Status{StatusError, StatusTimeout}
)

// TerminalStatuses lists every status a scan never leaves.
func TerminalStatuses() []Status { return slices.Clone(terminalStatuses) }

// FailedStatuses is the terminal subset counted as failures in summaries.
func FailedStatuses() []Status { return slices.Clone(failedStatuses) }

// IsTerminal reports whether no further progress can happen for a scan in this status.
func (s Status) IsTerminal() bool {
	return slices.Contains(terminalStatuses, s)
}

func (s Status) Valid() bool {
	return s == StatusQueued || s == StatusRunning || s.IsTerminal()
}

// SeverityCounts value object
type SeverityCounts struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
	Info   int `json:"info"`
	Total  int `json:"total"`
}

// PrivacyScore starts at 100 and loses 10/5/2 points per high/medium/low finding.
func (c SeverityCounts) PrivacyScore() int {
	score := 100 - (c.High*10 + c.Medium*5 + c.Low*2)
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Aggregate Root: Scan
type Scan struct {
	ID             ScanID         `json:"id"`
	WorkspaceID    string         `json:"workspace_id"`
	TargetType     TargetType     `json:"target_type"`
	TargetValue    string         `json:"target_value"`
	Providers      []string       `json:"providers"`
	Status         Status         `json:"status"`
	CreditsUsed    int            `json:"credits_used"`
	Counts         SeverityCounts `json:"counts"`
	PrivacyScore   *int           `json:"privacy_score,omitempty"`
	ProviderCounts map[string]int `json:"provider_counts,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	Source         string         `json:"source,omitempty"` // api | schedule
	CreatedAt      time.Time      `json:"created_at"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	FinishedAt     *time.Time     `json:"finished_at,omitempty"`
	ArchivedAt     *time.Time     `json:"archived_at,omitempty"`
}

// Completion holds what a finished run writes back onto the scan row.
type Completion struct {
	Status         Status
	Counts         SeverityCounts
	PrivacyScore   int
	ProviderCounts map[string]int
	ErrorMessage   string
	FinishedAt     time.Time
}

// Filter for paginated listing
type Filter struct {
	Status          Status
	TargetType      TargetType
	IncludeArchived bool
}

// Summary rekap scan per workspace
type Summary struct {
	TotalScans   int     `json:"total_scans"`
	Finished     int     `json:"finished"`
	Failed       int     `json:"failed"`
	High         int     `json:"high"`
	Medium       int     `json:"medium"`
	Low          int     `json:"low"`
	AvgPrivacy   float64 `json:"avg_privacy_score"`
	CreditsSpent int     `json:"credits_spent"`
}
