package providers

// Status of one provider within a scan.
type Status string

const (
	StatusPending        Status = "pending"
	StatusRunning        Status = "running"
	StatusSuccess        Status = "success"
	StatusFailed         Status = "failed"
	StatusNotConfigured  Status = "not_configured"
	StatusTierRestricted Status = "tier_restricted"
	StatusSkipped        Status = "skipped"
)

func (s Status) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusNotConfigured, StatusTierRestricted, StatusSkipped:
		return true
	}
	return false
}
