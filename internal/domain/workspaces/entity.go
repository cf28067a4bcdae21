package workspaces

import (
	"errors"
	"time"

	"github.com/bryanwahyu/footprint/internal/domain/providers"
)

var (
	ErrNotFound      = errors.New("workspace not found")
	ErrQuotaExceeded = errors.New("monthly scan quota exceeded")
)

// Workspace is a tenant: it owns scans, credits and a plan tier.
type Workspace struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	Tier             providers.Tier `json:"tier"`
	ScanLimitMonthly *int           `json:"scan_limit_monthly,omitempty"`
	ScansUsedMonthly int            `json:"scans_used_monthly"`
	CreatedAt        time.Time      `json:"created_at"`
}

// DefaultMonthlyQuota per tier. ok is false for unlimited plans.
func DefaultMonthlyQuota(t providers.Tier) (limit int, ok bool) {
	switch t {
	case providers.TierBusiness:
		return 0, false
	case providers.TierPro:
		return 100, true
	default:
		return 10, true
	}
}

// Limit returns the effective monthly limit, preferring the workspace override.
func (w Workspace) Limit() (int, bool) {
	if w.ScanLimitMonthly != nil {
		return *w.ScanLimitMonthly, true
	}
	return DefaultMonthlyQuota(w.Tier)
}

// CheckQuota returns ErrQuotaExceeded when no scans are left this month.
func (w Workspace) CheckQuota() error {
	limit, ok := w.Limit()
	if ok && w.ScansUsedMonthly >= limit {
		return ErrQuotaExceeded
	}
	return nil
}
