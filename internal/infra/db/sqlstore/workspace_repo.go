package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/bryanwahyu/footprint/internal/domain/workspaces"
)

type WorkspaceRepository struct {
	db  *sql.DB
	d   Dialect
	now func() time.Time
}

func NewWorkspaceRepository(db *sql.DB, d Dialect) *WorkspaceRepository {
	return &WorkspaceRepository{db: db, d: d, now: func() time.Time { return time.Now().UTC() }}
}

// period is the usage bucket, counters reset when it changes.
func (r *WorkspaceRepository) period() string { return r.now().Format("2006-01") }

func (r *WorkspaceRepository) Get(ctx context.Context, id string) (*workspaces.Workspace, error) {
	const q = `
SELECT id, name, tier, scan_limit_monthly, scans_used_monthly, usage_period, created_at
FROM workspaces WHERE id = ?`
	var (
		w      workspaces.Workspace
		limit  sql.NullInt64
		period sql.NullString
	)
	err := r.db.QueryRowContext(ctx, r.d.Rebind(q), id).Scan(
		&w.ID, &w.Name, &w.Tier, &limit, &w.ScansUsedMonthly, &period, &w.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, workspaces.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if limit.Valid {
		l := int(limit.Int64)
		w.ScanLimitMonthly = &l
	}
	if period.String != r.period() {
		w.ScansUsedMonthly = 0
	}
	return &w, nil
}

// Save upsert workspace, usage counter tidak disentuh
func (r *WorkspaceRepository) Save(ctx context.Context, w *workspaces.Workspace) error {
	created := w.CreatedAt
	if created.IsZero() {
		created = r.now()
	}
	var limit any
	if w.ScanLimitMonthly != nil {
		limit = *w.ScanLimitMonthly
	}
	q := `
INSERT INTO workspaces (id, name, tier, scan_limit_monthly, scans_used_monthly, usage_period, created_at)
VALUES (?, ?, ?, ?, 0, ?, ?)` + r.d.Upsert("id", "name", "tier", "scan_limit_monthly")
	_, err := r.db.ExecContext(ctx, r.d.Rebind(q), w.ID, w.Name, w.Tier, limit, r.period(), created)
	return err
}

// ReserveScan increments usage only while the month still has room, so
// concurrent intakes cannot overshoot the limit. A stale period counts as zero.
func (r *WorkspaceRepository) ReserveScan(ctx context.Context, id string, limit *int) error {
	p := r.period()
	q := `
UPDATE workspaces
SET scans_used_monthly = CASE WHEN usage_period = ? THEN scans_used_monthly + 1 ELSE 1 END,
    usage_period = ?
WHERE id = ?`
	args := []any{p, p, id}
	if limit != nil {
		if *limit <= 0 {
			return workspaces.ErrQuotaExceeded
		}
		q += ` AND (usage_period IS NULL OR usage_period <> ? OR scans_used_monthly < ?)`
		args = append(args, p, *limit)
	}
	res, err := r.db.ExecContext(ctx, r.d.Rebind(q), args...)
	if err != nil {
		return err
	}
	if limit == nil {
		return expectRow(res, workspaces.ErrNotFound)
	}
	return expectRow(res, workspaces.ErrQuotaExceeded)
}

func (r *WorkspaceRepository) ReleaseScan(ctx context.Context, id string) error {
	const q = `
UPDATE workspaces SET scans_used_monthly = scans_used_monthly - 1
WHERE id = ? AND usage_period = ? AND scans_used_monthly > 0`
	_, err := r.db.ExecContext(ctx, r.d.Rebind(q), id, r.period())
	return err
}
