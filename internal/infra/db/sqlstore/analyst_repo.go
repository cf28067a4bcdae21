package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	domain "github.com/bryanwahyu/footprint/internal/domain/analyst"
)

type AnalystRepository struct {
	db *sql.DB
	d  Dialect
}

func NewAnalystRepository(db *sql.DB, d Dialect) *AnalystRepository {
	return &AnalystRepository{db: db, d: d}
}

// Save inserts or updates an analysis record
func (r *AnalystRepository) Save(ctx context.Context, a *domain.Analysis) error {
	result := a.Result
	if strings.TrimSpace(result) == "" {
		result = "{}"
	}
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	q := `
INSERT INTO analyses (id, workspace_id, scan_id, model, result_json, created_at)
VALUES (?, ?, ?, ?, ?, ?)` + r.d.Upsert("id", "model", "result_json")
	_, err := r.db.ExecContext(ctx, r.d.Rebind(q), a.ID, a.WorkspaceID, a.ScanID, a.Model, result, createdAt)
	return err
}

// Paginate returns a page of analysis records ordered by created_at desc
func (r *AnalystRepository) Paginate(ctx context.Context, workspace string, page, pageSize int) ([]*domain.Analysis, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	const q = `
SELECT id, workspace_id, scan_id, model, result_json, created_at
FROM analyses
WHERE workspace_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, r.d.Rebind(q), workspace, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Analysis
	for rows.Next() {
		var a domain.Analysis
		if err := rows.Scan(&a.ID, &a.WorkspaceID, &a.ScanID, &a.Model, &a.Result, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.CreatedAt = a.CreatedAt.UTC()
		out = append(out, &a)
	}
	return out, rows.Err()
}

// LatestByScan returns the latest analysis for a given scan, nil when none
func (r *AnalystRepository) LatestByScan(ctx context.Context, workspace string, scanID string) (*domain.Analysis, error) {
	const q = `
SELECT id, workspace_id, scan_id, model, result_json, created_at
FROM analyses
WHERE workspace_id = ? AND scan_id = ?
ORDER BY created_at DESC, id DESC
LIMIT 1`
	var a domain.Analysis
	err := r.db.QueryRowContext(ctx, r.d.Rebind(q), workspace, scanID).Scan(&a.ID, &a.WorkspaceID, &a.ScanID, &a.Model, &a.Result, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}
