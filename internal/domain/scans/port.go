package scans

import (
	"context"
	"time"
)

// Repository port (interface untuk persistence)
type Repository interface {
	Create(ctx context.Context, s *Scan) error
	Get(ctx context.Context, workspace string, id ScanID) (*Scan, error)
	Latest(ctx context.Context, workspace string, limit int) ([]*Scan, error)
	Paginate(ctx context.Context, workspace string, page, pageSize int, f Filter) (PaginatedResult, error)
	UpdateStatus(ctx context.Context, workspace string, id ScanID, status Status, message string) error
	Complete(ctx context.Context, workspace string, id ScanID, c Completion) error
	Archive(ctx context.Context, workspace string, id ScanID, at time.Time) error
	Summary(ctx context.Context, workspace string, sinceDays int) (Summary, error)
}

// Runner port (interface untuk eksekusi provider lewat worker)
type Runner interface {
	Run(ctx context.Context, req RunRequest) (RunResult, error)
}

// ArtifactStore port (interface untuk penyimpanan raw payload provider)
type ArtifactStore interface {
	PutJSON(ctx context.Context, key string, payload []byte) (string, error)
}

// Webhook events
const (
	EventScanCompleted    = "scan.completed"
	EventFindingsCritical = "findings.critical"
)

// Notification dikirim saat scan selesai
type Notification struct {
	Event string `json:"event"`
	Scan  Scan   `json:"scan"`
}

// Notifier port (interface untuk webhook)
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
