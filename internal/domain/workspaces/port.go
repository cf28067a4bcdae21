package workspaces

import "context"

// Repository port
type Repository interface {
	Get(ctx context.Context, id string) (*Workspace, error)
	Save(ctx context.Context, w *Workspace) error
	// ReserveScan atomically takes one scan from this month's quota.
	// A nil limit means unlimited. Returns ErrQuotaExceeded when none are left.
	ReserveScan(ctx context.Context, id string, limit *int) error
	// ReleaseScan gives back a reservation whose scan was never created.
	ReleaseScan(ctx context.Context, id string) error
}
