package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bryanwahyu/footprint/internal/domain/findings"
)

// FindingRepository is append-only: rows are never updated after insert.
type FindingRepository struct {
	db *sql.DB
	d  Dialect
}

func NewFindingRepository(db *sql.DB, d Dialect) *FindingRepository {
	return &FindingRepository{db: db, d: d}
}

// Insert tulis batch findings dalam satu transaksi
func (r *FindingRepository) Insert(ctx context.Context, fs []findings.Finding) error {
	if len(fs) == 0 {
		return nil
	}
	const q = `
INSERT INTO findings
(id, scan_id, workspace_id, provider, kind, severity, confidence, evidence, meta, observed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	return r.inTx(ctx, q, len(fs), func(i int) ([]any, error) {
		f := fs[i]
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
		evidence, err := marshalJSON(f.Evidence, "[]")
		if err != nil {
			return nil, fmt.Errorf("encode evidence: %w", err)
		}
		meta, err := marshalJSON(f.Meta, "{}")
		if err != nil {
			return nil, fmt.Errorf("encode meta: %w", err)
		}
		return []any{f.ID, f.ScanID, f.WorkspaceID, f.Provider, f.Kind, f.Severity, f.Confidence,
			evidence, meta, observed(f.ObservedAt)}, nil
	})
}

func (r *FindingRepository) ListByScan(ctx context.Context, workspace, scanID string) ([]findings.Finding, error) {
	const q = `
SELECT id, scan_id, workspace_id, provider, kind, severity, confidence, evidence, meta, observed_at
FROM findings
WHERE workspace_id = ? AND scan_id = ?
ORDER BY observed_at ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, r.d.Rebind(q), workspace, scanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []findings.Finding
	for rows.Next() {
		var (
			f              findings.Finding
			evidence, meta sql.NullString
		)
		if err := rows.Scan(&f.ID, &f.ScanID, &f.WorkspaceID, &f.Provider, &f.Kind, &f.Severity, &f.Confidence,
			&evidence, &meta, &f.ObservedAt); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(evidence, &f.Evidence); err != nil {
			return nil, fmt.Errorf("decode evidence of %s: %w", f.ID, err)
		}
		if err := unmarshalJSON(meta, &f.Meta); err != nil {
			return nil, fmt.Errorf("decode meta of %s: %w", f.ID, err)
		}
		f.ObservedAt = f.ObservedAt.UTC()
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *FindingRepository) InsertProfiles(ctx context.Context, ps []findings.SocialProfile) error {
	if len(ps) == 0 {
		return nil
	}
	const q = `
INSERT INTO social_profiles
(id, scan_id, provider, platform, username, url, found, status, meta, observed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	return r.inTx(ctx, q, len(ps), func(i int) ([]any, error) {
		p := ps[i]
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		meta, err := marshalJSON(p.Meta, "{}")
		if err != nil {
			return nil, fmt.Errorf("encode meta: %w", err)
		}
		return []any{p.ID, p.ScanID, p.Provider, p.Platform, p.Username, p.URL, p.Found, p.Status,
			meta, observed(p.ObservedAt)}, nil
	})
}

func (r *FindingRepository) ListProfilesByScan(ctx context.Context, scanID string) ([]findings.SocialProfile, error) {
	const q = `
SELECT id, scan_id, provider, platform, username, url, found, status, meta, observed_at
FROM social_profiles
WHERE scan_id = ?
ORDER BY observed_at ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, r.d.Rebind(q), scanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []findings.SocialProfile
	for rows.Next() {
		var (
			p                 findings.SocialProfile
			user, url, status sql.NullString
			meta              sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.ScanID, &p.Provider, &p.Platform, &user, &url, &p.Found, &status,
			&meta, &p.ObservedAt); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(meta, &p.Meta); err != nil {
			return nil, fmt.Errorf("decode meta of %s: %w", p.ID, err)
		}
		p.Username, p.URL, p.Status = user.String, url.String, status.String
		p.ObservedAt = p.ObservedAt.UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *FindingRepository) inTx(ctx context.Context, q string, n int, args func(i int) ([]any, error)) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, r.d.Rebind(q))
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i := 0; i < n; i++ {
		a, err := args(i)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, a...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func observed(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
