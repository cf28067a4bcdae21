package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/bryanwahyu/footprint/internal/domain/scanevents"
)

// EventRepository menyimpan audit provider_events per scan
type EventRepository struct {
	db *sql.DB
	d  Dialect
}

func NewEventRepository(db *sql.DB, d Dialect) *EventRepository {
	return &EventRepository{db: db, d: d}
}

// Save insert event, ID diisi dari database
func (r *EventRepository) Save(ctx context.Context, e *scanevents.ProviderEvent) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	details := e.DetailsJSON
	if details == "" {
		details = "{}"
	}
	const q = `
INSERT INTO provider_events
(workspace_id, scan_id, provider, event, message, result_count, duration_ms, details_json, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	args := []any{e.WorkspaceID, e.ScanID, e.Provider, e.Event, e.Message, e.ResultCount, e.DurationMS, details, e.CreatedAt}

	// lib/pq tidak support LastInsertId
	if r.d == Postgres {
		return r.db.QueryRowContext(ctx, r.d.Rebind(q)+" RETURNING id", args...).Scan(&e.ID)
	}
	res, err := r.db.ExecContext(ctx, r.d.Rebind(q), args...)
	if err != nil {
		return err
	}
	e.ID, err = res.LastInsertId()
	return err
}

func (r *EventRepository) ListByScan(ctx context.Context, workspace string, scanID string, limit int) ([]*scanevents.ProviderEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT id, workspace_id, scan_id, provider, event, message, result_count, duration_ms, details_json, created_at
FROM provider_events
WHERE workspace_id = ? AND scan_id = ?
ORDER BY created_at ASC, id ASC
LIMIT ?`
	rows, err := r.db.QueryContext(ctx, r.d.Rebind(q), workspace, scanID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*scanevents.ProviderEvent
	for rows.Next() {
		var (
			e        scanevents.ProviderEvent
			msg, det sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.WorkspaceID, &e.ScanID, &e.Provider, &e.Event, &msg,
			&e.ResultCount, &e.DurationMS, &det, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Message, e.DetailsJSON = msg.String, det.String
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, &e)
	}
	return out, rows.Err()
}
