package sqlstore

import (
	"context"
	"database/sql"
)

// Store groups the repositories sharing one connection pool.
type Store struct {
	DB         *sql.DB
	Dialect    Dialect
	Scans      *ScanRepository
	Findings   *FindingRepository
	Ledger     *LedgerRepository
	Events     *EventRepository
	Progress   *ProgressStore
	Workspaces *WorkspaceRepository
	Analyses   *AnalystRepository
}

func New(db *sql.DB, d Dialect) *Store {
	return &Store{
		DB:         db,
		Dialect:    d,
		Scans:      NewScanRepository(db, d),
		Findings:   NewFindingRepository(db, d),
		Ledger:     NewLedgerRepository(db, d),
		Events:     NewEventRepository(db, d),
		Progress:   NewProgressStore(db, d),
		Workspaces: NewWorkspaceRepository(db, d),
		Analyses:   NewAnalystRepository(db, d),
	}
}

// Ping dipakai health check
func (s *Store) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}
