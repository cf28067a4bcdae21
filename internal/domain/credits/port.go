package credits

import "context"

// Ledger port. Spend must check and debit atomically.
type Ledger interface {
	Balance(ctx context.Context, workspace string) (int, error)
	Spend(ctx context.Context, req SpendRequest) (Entry, error)
	Grant(ctx context.Context, workspace string, amount int, reason, refID string) (Entry, error)
	Entries(ctx context.Context, workspace string, limit int) ([]Entry, error)
}
