package scanevents

import "context"

// Repository defines persistence for provider events
type Repository interface {
	Save(ctx context.Context, e *ProviderEvent) error
	ListByScan(ctx context.Context, workspace string, scanID string, limit int) ([]*ProviderEvent, error)
}
