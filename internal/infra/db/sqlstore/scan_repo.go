package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/bryanwahyu/footprint/internal/domain/scans"
)

const scanColumns = `id, workspace_id, target_type, target_value, providers, status, credits_used,
       high, medium, low, info, findings_total, privacy_score, provider_counts,
       error_message, source, created_at, started_at, finished_at, archived_at`

// notTerminal guards against overwriting a scan that already ended.
// The list comes from the domain so SQL and IsTerminal cannot drift.
func notTerminal() (string, []any) {
	return statusIn("status NOT IN", domain.TerminalStatuses())
}

func statusIn(prefix string, sts []domain.Status) (string, []any) {
	marks := make([]string, len(sts))
	args := make([]any, len(sts))
	for i, st := range sts {
		marks[i] = "?"
		args[i] = string(st)
	}
	return prefix + " (" + strings.Join(marks, ", ") + ")", args
}

type ScanRepository struct {
	db *sql.DB
	d  Dialect
}

func NewScanRepository(db *sql.DB, d Dialect) *ScanRepository {
	return &ScanRepository{db: db, d: d}
}

// Create insert scan baru
func (r *ScanRepository) Create(ctx context.Context, s *domain.Scan) error {
	providers, err := marshalJSON(s.Providers, "[]")
	if err != nil {
		return err
	}
	created := s.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	const q = `
INSERT INTO scans
(id, workspace_id, target_type, target_value, providers, status, credits_used, source, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, r.d.Rebind(q),
		s.ID, s.WorkspaceID, s.TargetType, s.TargetValue, providers, s.Status, s.CreditsUsed, s.Source, created,
	)
	return err
}

// Get ambil 1 scan by id
func (r *ScanRepository) Get(ctx context.Context, workspace string, id domain.ScanID) (*domain.Scan, error) {
	q := `SELECT ` + scanColumns + ` FROM scans WHERE workspace_id = ? AND id = ?`
	s, err := scanRow(r.db.QueryRowContext(ctx, r.d.Rebind(q), workspace, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return s, err
}

// Latest scans per workspace, archived excluded
func (r *ScanRepository) Latest(ctx context.Context, workspace string, limit int) ([]*domain.Scan, error) {
	if limit <= 0 {
		limit = 10
	}
	q := `SELECT ` + scanColumns + ` FROM scans
WHERE workspace_id = ? AND archived_at IS NULL
ORDER BY created_at DESC, id DESC
LIMIT ?`
	return r.list(ctx, q, workspace, limit)
}

func (r *ScanRepository) Paginate(ctx context.Context, workspace string, page, pageSize int, f domain.Filter) (domain.PaginatedResult, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	where := []string{"workspace_id = ?"}
	args := []any{workspace}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.TargetType != "" {
		where = append(where, "target_type = ?")
		args = append(args, f.TargetType)
	}
	if !f.IncludeArchived {
		where = append(where, "archived_at IS NULL")
	}
	cond := strings.Join(where, " AND ")

	var total int64
	if err := r.db.QueryRowContext(ctx, r.d.Rebind(`SELECT COUNT(*) FROM scans WHERE `+cond), args...).Scan(&total); err != nil {
		return domain.PaginatedResult{}, fmt.Errorf("counting scans: %w", err)
	}

	q := `SELECT ` + scanColumns + ` FROM scans WHERE ` + cond + `
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?`
	rows, err := r.list(ctx, q, append(args, pageSize, (page-1)*pageSize)...)
	if err != nil {
		return domain.PaginatedResult{}, fmt.Errorf("querying scans: %w", err)
	}
	return domain.NewPage(rows, page, pageSize, total), nil
}

// UpdateStatus ubah status selama scan belum terminal
func (r *ScanRepository) UpdateStatus(ctx context.Context, workspace string, id domain.ScanID, status domain.Status, message string) error {
	q := `UPDATE scans SET status = ?, error_message = ?`
	args := []any{status, message}
	if status == domain.StatusRunning {
		q += `, started_at = COALESCE(started_at, ?)`
		args = append(args, time.Now().UTC())
	}
	guard, gargs := notTerminal()
	q += ` WHERE workspace_id = ? AND id = ? AND ` + guard
	args = append(args, workspace, id)
	args = append(args, gargs...)
	_, err := r.db.ExecContext(ctx, r.d.Rebind(q), args...)
	return err
}

// Complete tulis hasil akhir scan. Scan yang sudah terminal tidak disentuh.
func (r *ScanRepository) Complete(ctx context.Context, workspace string, id domain.ScanID, c domain.Completion) error {
	counts, err := marshalJSON(c.ProviderCounts, "{}")
	if err != nil {
		return err
	}
	guard, gargs := notTerminal()
	q := `
UPDATE scans
SET status = ?, high = ?, medium = ?, low = ?, info = ?, findings_total = ?,
    privacy_score = ?, provider_counts = ?, error_message = ?, finished_at = ?
WHERE workspace_id = ? AND id = ? AND ` + guard
	args := append([]any{
		c.Status, c.Counts.High, c.Counts.Medium, c.Counts.Low, c.Counts.Info, c.Counts.Total,
		c.PrivacyScore, counts, c.ErrorMessage, c.FinishedAt,
		workspace, id,
	}, gargs...)
	res, err := r.db.ExecContext(ctx, r.d.Rebind(q), args...)
	if err != nil {
		return err
	}
	return expectRow(res, domain.ErrNotFound)
}

func (r *ScanRepository) Archive(ctx context.Context, workspace string, id domain.ScanID, at time.Time) error {
	const q = `UPDATE scans SET archived_at = ? WHERE workspace_id = ? AND id = ?`
	res, err := r.db.ExecContext(ctx, r.d.Rebind(q), at, workspace, id)
	if err != nil {
		return err
	}
	return expectRow(res, domain.ErrNotFound)
}

// Summary rekap scan sejak N hari
func (r *ScanRepository) Summary(ctx context.Context, workspace string, sinceDays int) (domain.Summary, error) {
	if sinceDays <= 0 {
		sinceDays = 30
	}
	cut := time.Now().UTC().AddDate(0, 0, -sinceDays)
	failed, fargs := statusIn("status IN", domain.FailedStatuses())
	q := `
SELECT COUNT(*),
       COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
       COALESCE(SUM(CASE WHEN ` + failed + ` THEN 1 ELSE 0 END), 0),
       COALESCE(SUM(high), 0),
       COALESCE(SUM(medium), 0),
       COALESCE(SUM(low), 0),
       COALESCE(AVG(privacy_score), 0),
       COALESCE(SUM(credits_used), 0)
FROM scans
WHERE workspace_id = ? AND created_at >= ?`
	var s domain.Summary
	args := append([]any{string(domain.StatusFinished)}, fargs...)
	args = append(args, workspace, cut)
	err := r.db.QueryRowContext(ctx, r.d.Rebind(q), args...).Scan(
		&s.TotalScans, &s.Finished, &s.Failed, &s.High, &s.Medium, &s.Low, &s.AvgPrivacy, &s.CreditsSpent,
	)
	return s, err
}

func (r *ScanRepository) list(ctx context.Context, q string, args ...any) ([]*domain.Scan, error) {
	rows, err := r.db.QueryContext(ctx, r.d.Rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Scan
	for rows.Next() {
		s, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(row rowScanner) (*domain.Scan, error) {
	var (
		s                        domain.Scan
		providers, counts, msg   sql.NullString
		source                   sql.NullString
		score                    sql.NullInt64
		started, finished, archd sql.NullTime
	)
	if err := row.Scan(
		&s.ID, &s.WorkspaceID, &s.TargetType, &s.TargetValue, &providers, &s.Status, &s.CreditsUsed,
		&s.Counts.High, &s.Counts.Medium, &s.Counts.Low, &s.Counts.Info, &s.Counts.Total,
		&score, &counts, &msg, &source, &s.CreatedAt, &started, &finished, &archd,
	); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(providers, &s.Providers); err != nil {
		return nil, fmt.Errorf("decode providers: %w", err)
	}
	if err := unmarshalJSON(counts, &s.ProviderCounts); err != nil {
		return nil, fmt.Errorf("decode provider_counts: %w", err)
	}
	if score.Valid {
		v := int(score.Int64)
		s.PrivacyScore = &v
	}
	s.ErrorMessage = msg.String
	s.Source = source.String
	s.CreatedAt = s.CreatedAt.UTC()
	s.StartedAt = nullTime(started)
	s.FinishedAt = nullTime(finished)
	s.ArchivedAt = nullTime(archd)
	return &s, nil
}

func expectRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
