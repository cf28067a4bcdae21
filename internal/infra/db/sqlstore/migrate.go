package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Migration is one schema version. Up holds single statements since the
// mysql driver rejects multi statement execs by default.
type Migration struct {
	Version     int
	Description string
	Up          []string
}

// Migrate applies every migration newer than the recorded schema version.
func Migrate(ctx context.Context, db *sql.DB, d Dialect, migrations []Migration, log *zap.Logger) (int, error) {
	if log == nil {
		log = zap.NewNop()
	}
	const create = `CREATE TABLE IF NOT EXISTS schema_migrations (
    version     INTEGER PRIMARY KEY,
    description VARCHAR(255) NOT NULL,
    applied_at  TIMESTAMP NOT NULL
)`
	if _, err := db.ExecContext(ctx, create); err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}

	sorted := append([]Migration(nil), migrations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })

	applied := 0
	for _, m := range sorted {
		if m.Version <= current {
			continue
		}
		if err := apply(ctx, db, d, m); err != nil {
			return applied, fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
		log.Info("migration applied", zap.Int("version", m.Version), zap.String("description", m.Description))
		applied++
	}
	return applied, nil
}

func apply(ctx context.Context, db *sql.DB, d Dialect, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range m.Up {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	const rec = `INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)`
	if _, err := tx.ExecContext(ctx, d.Rebind(rec), m.Version, m.Description, time.Now().UTC()); err != nil {
		return err
	}
	return tx.Commit()
}
