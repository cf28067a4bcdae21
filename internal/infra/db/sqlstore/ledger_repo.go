package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bryanwahyu/footprint/internal/domain/credits"
	"github.com/bryanwahyu/footprint/internal/domain/workspaces"
)

// LedgerRepository stores signed credit deltas. Rows are only ever inserted.
type LedgerRepository struct {
	db *sql.DB
	d  Dialect
}

func NewLedgerRepository(db *sql.DB, d Dialect) *LedgerRepository {
	return &LedgerRepository{db: db, d: d}
}

func (r *LedgerRepository) Balance(ctx context.Context, workspace string) (int, error) {
	return balance(ctx, r.db, r.d, workspace)
}

// Spend lock baris workspace, cek saldo, lalu tulis delta negatif dalam satu transaksi.
// Dua spend paralel untuk workspace yang sama jadi serial di lock ini.
func (r *LedgerRepository) Spend(ctx context.Context, req credits.SpendRequest) (credits.Entry, error) {
	if req.Cost < 0 {
		return credits.Entry{}, fmt.Errorf("negative cost %d", req.Cost)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return credits.Entry{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var id string
	err = tx.QueryRowContext(ctx, r.d.Rebind(`SELECT id FROM workspaces WHERE id = ? FOR UPDATE`), req.WorkspaceID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return credits.Entry{}, workspaces.ErrNotFound
	}
	if err != nil {
		return credits.Entry{}, fmt.Errorf("lock workspace: %w", err)
	}

	bal, err := balance(ctx, tx, r.d, req.WorkspaceID)
	if err != nil {
		return credits.Entry{}, err
	}
	if !credits.CanSpend(bal, req.Cost) {
		return credits.Entry{}, fmt.Errorf("%w: balance %d, cost %d", credits.ErrInsufficientCredits, bal, req.Cost)
	}

	reason := req.Reason
	if reason == "" {
		reason = credits.ReasonScan
	}
	e, err := insertEntry(ctx, tx, r.d, req.WorkspaceID, -req.Cost, reason, req.RefID, req.Meta)
	if err != nil {
		return credits.Entry{}, err
	}
	return e, tx.Commit()
}

func (r *LedgerRepository) Grant(ctx context.Context, workspace string, amount int, reason, refID string) (credits.Entry, error) {
	if amount <= 0 {
		return credits.Entry{}, fmt.Errorf("grant amount must be positive, got %d", amount)
	}
	return insertEntry(ctx, r.db, r.d, workspace, amount, reason, refID, nil)
}

// Entries list ledger terbaru dulu
func (r *LedgerRepository) Entries(ctx context.Context, workspace string, limit int) ([]credits.Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT id, workspace_id, delta, reason, ref_id, meta, created_at
FROM credits_ledger
WHERE workspace_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?`
	rows, err := r.db.QueryContext(ctx, r.d.Rebind(q), workspace, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []credits.Entry
	for rows.Next() {
		var (
			e         credits.Entry
			ref, meta sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.WorkspaceID, &e.Delta, &e.Reason, &ref, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(meta, &e.Meta); err != nil {
			return nil, fmt.Errorf("decode meta of %s: %w", e.ID, err)
		}
		e.RefID = ref.String
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func balance(ctx context.Context, q queryer, d Dialect, workspace string) (int, error) {
	var b int
	err := q.QueryRowContext(ctx, d.Rebind(`SELECT COALESCE(SUM(delta), 0) FROM credits_ledger WHERE workspace_id = ?`), workspace).Scan(&b)
	if err != nil {
		return 0, fmt.Errorf("sum ledger: %w", err)
	}
	return b, nil
}

func insertEntry(ctx context.Context, q queryer, d Dialect, workspace string, delta int, reason, refID string, meta map[string]any) (credits.Entry, error) {
	metaJSON, err := marshalJSON(meta, "{}")
	if err != nil {
		return credits.Entry{}, err
	}
	e := credits.Entry{
		ID:          uuid.NewString(),
		WorkspaceID: workspace,
		Delta:       delta,
		Reason:      reason,
		RefID:       refID,
		Meta:        meta,
		CreatedAt:   time.Now().UTC(),
	}
	const ins = `
INSERT INTO credits_ledger (id, workspace_id, delta, reason, ref_id, meta, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := q.ExecContext(ctx, d.Rebind(ins), e.ID, e.WorkspaceID, e.Delta, e.Reason, e.RefID, metaJSON, e.CreatedAt); err != nil {
		return credits.Entry{}, fmt.Errorf("insert ledger entry: %w", err)
	}
	return e, nil
}
