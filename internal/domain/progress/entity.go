package progress

import (
	"time"

	"github.com/bryanwahyu/footprint/internal/domain/providers"
	"github.com/bryanwahyu/footprint/internal/domain/scans"
)

// EventType of a relayed update
type EventType string

const (
	EventProviderUpdate EventType = "provider_update"
	EventScanComplete   EventType = "scan_complete"
)

// Snapshot is the single authoritative progress row of a scan.
type Snapshot struct {
	ScanID        string                      `json:"scan_id"`
	Status        scans.Status                `json:"status"`
	Total         int                         `json:"total_providers"`
	Completed     int                         `json:"completed_providers"`
	Failed        int                         `json:"failed_providers"`
	Current       []string                    `json:"current_providers"`
	FindingsCount int                         `json:"findings_count"`
	Percent       int                         `json:"percent"`
	Message       string                      `json:"message,omitempty"`
	Error         bool                        `json:"error"`
	Providers     map[string]providers.Status `json:"providers"`
	Version       int64                       `json:"version"` // increases with every accepted change
	UpdatedAt     time.Time                   `json:"updated_at"`
}

// Update is what subscribers receive on the scan channel.
type Update struct {
	Type           EventType        `json:"type"`
	ScanID         string           `json:"scan_id"`
	Provider       string           `json:"provider,omitempty"`
	ProviderStatus providers.Status `json:"provider_status,omitempty"`
	ResultCount    int              `json:"result_count,omitempty"`
	Snapshot       Snapshot         `json:"snapshot"`
}

// Channel name for a scan's realtime updates.
func Channel(scanID string) string { return "scan_progress:" + scanID }
