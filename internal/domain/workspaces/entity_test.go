package workspaces

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bryanwahyu/footprint/internal/domain/providers"
)

func TestCheckQuota(t *testing.T) {
	five := 5
	tests := []struct {
		name string
		ws   Workspace
		err  error
	}{
		{"free under limit", Workspace{Tier: providers.TierFree, ScansUsedMonthly: 9}, nil},
		{"free at limit", Workspace{Tier: providers.TierFree, ScansUsedMonthly: 10}, ErrQuotaExceeded},
		{"pro", Workspace{Tier: providers.TierPro, ScansUsedMonthly: 99}, nil},
		{"business unlimited", Workspace{Tier: providers.TierBusiness, ScansUsedMonthly: 100000}, nil},
		{"override", Workspace{Tier: providers.TierBusiness, ScanLimitMonthly: &five, ScansUsedMonthly: 5}, ErrQuotaExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.ws.CheckQuota(), tt.err)
		})
	}
}
