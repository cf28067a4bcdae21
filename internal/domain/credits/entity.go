package credits

import (
	"errors"
	"time"
)

// ErrInsufficientCredits is returned when a spend would take the balance below zero.
var ErrInsufficientCredits = errors.New("insufficient credits")

// Ledger reasons
const (
	ReasonScan   = "scan"
	ReasonGrant  = "grant"
	ReasonRefund = "refund"
)

// Entry is one signed, append-only ledger row.
type Entry struct {
	ID          string         `json:"id"`
	WorkspaceID string         `json:"workspace_id"`
	Delta       int            `json:"delta"`
	Reason      string         `json:"reason"`
	RefID       string         `json:"ref_id,omitempty"`
	Meta        map[string]any `json:"meta,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// SpendRequest debits Cost credits from a workspace.
type SpendRequest struct {
	WorkspaceID string
	Cost        int
	Reason      string
	RefID       string
	Meta        map[string]any
}

// Balance is the sum of all deltas.
func Balance(entries []Entry) int {
	total := 0
	for _, e := range entries {
		total += e.Delta
	}
	return total
}

// CanSpend reports whether balance covers cost.
func CanSpend(balance, cost int) bool {
	return cost >= 0 && balance >= cost
}
