package findings

import "context"

// Repository port. Findings and profiles are append-only.
type Repository interface {
	Insert(ctx context.Context, fs []Finding) error
	ListByScan(ctx context.Context, workspace, scanID string) ([]Finding, error)
	InsertProfiles(ctx context.Context, ps []SocialProfile) error
	ListProfilesByScan(ctx context.Context, scanID string) ([]SocialProfile, error)
}
