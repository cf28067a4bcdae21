package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bryanwahyu/footprint/internal/domain/progress"
)

// ProgressStore keeps one scan_progress row per scan. A write carrying an
// older version than the stored row is ignored.
type ProgressStore struct {
	db *sql.DB
	d  Dialect
}

func NewProgressStore(db *sql.DB, d Dialect) *ProgressStore {
	return &ProgressStore{db: db, d: d}
}

func (s *ProgressStore) Upsert(ctx context.Context, snap progress.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	const upd = `
UPDATE scan_progress
SET version = ?, status = ?, percent = ?, data = ?, updated_at = ?
WHERE scan_id = ? AND version < ?`
	res, err := s.db.ExecContext(ctx, s.d.Rebind(upd),
		snap.Version, snap.Status, snap.Percent, string(data), snap.UpdatedAt, snap.ScanID, snap.Version)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil || n > 0 {
		return err
	}

	// belum ada row, atau versi di db sudah lebih baru
	ins := s.d.InsertIgnore("scan_progress", "scan_id, version, status, percent, data, updated_at", 6)
	_, err = s.db.ExecContext(ctx, s.d.Rebind(ins),
		snap.ScanID, snap.Version, snap.Status, snap.Percent, string(data), snap.UpdatedAt)
	return err
}

func (s *ProgressStore) Get(ctx context.Context, scanID string) (*progress.Snapshot, error) {
	var data string
	err := s.db.QueryRowContext(ctx, s.d.Rebind(`SELECT data FROM scan_progress WHERE scan_id = ?`), scanID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap progress.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", scanID, err)
	}
	return &snap, nil
}
